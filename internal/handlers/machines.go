package handlers

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gorilla/sessions"

	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/forms"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/models"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/store"
	"github.com/kakhikvaratskhelia-boop/AGRO-RENT2/internal/uploads"
)

// multipartMemory is how much of a multipart body is buffered in memory
// before spilling to temp files.
const multipartMemory = 1 << 20

type MachineHandler struct {
	Store          *store.Store
	Uploads        *uploads.Storage
	SessionStore   *sessions.CookieStore
	Templates      *TemplateCache
	MaxUploadBytes int64
}

func (h *MachineHandler) Index(w http.ResponseWriter, r *http.Request) {
	search := r.URL.Query().Get("search")
	machines, err := h.Store.ListMachines(r.Context(), search)
	if err != nil {
		slog.Error("Failed to list machines", "error", err)
		http.Error(w, "Error fetching listings", http.StatusInternalServerError)
		return
	}

	data := pageData(w, r, h.SessionStore)
	data["Machines"] = machines
	data["Search"] = search
	h.Templates.Render(w, http.StatusOK, "index.html", data)
}

func (h *MachineHandler) Details(w http.ResponseWriter, r *http.Request) {
	machine, ok := h.loadMachine(w, r)
	if !ok {
		return
	}
	data := pageData(w, r, h.SessionStore)
	data["Title"] = machine.Name
	data["Machine"] = machine
	data["CanModify"] = models.CanModify(CurrentUser(r), machine)
	h.Templates.Render(w, http.StatusOK, "machine_details.html", data)
}

func (h *MachineHandler) AddForm(w http.ResponseWriter, r *http.Request) {
	h.renderForm(w, r, http.StatusOK, "Add machinery", "/add", forms.MachineForm{}, nil, nil)
}

func (h *MachineHandler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.parseMultipart(w, r, "Add machinery", "/add", nil) {
		return
	}
	form := forms.ParseMachine(r)
	if errs := forms.Validate(form); errs != nil {
		h.renderForm(w, r, http.StatusOK, "Add machinery", "/add", form, errs, nil)
		return
	}

	key, imageName, err := h.saveImage(r)
	if err != nil {
		slog.Error("Failed to save image", "error", err)
		http.Error(w, "Error saving image file", http.StatusInternalServerError)
		return
	}

	machine := &models.Machine{
		Name:        form.Name,
		Category:    form.Category,
		Price:       form.PriceValue(),
		Description: form.Description,
		ImageFile:   key,
		ImageName:   imageName,
		OwnerID:     CurrentUser(r).ID,
	}
	if err := h.Store.CreateMachine(r.Context(), machine); err != nil {
		slog.Error("Failed to create machine", "error", err)
		h.discardImage(key)
		http.Error(w, "Error saving listing", http.StatusInternalServerError)
		return
	}
	slog.Info("Listing created", "machine_id", machine.ID, "user_id", machine.OwnerID)

	h.flashAndRedirect(w, r, "success", "Listing added!", "/")
}

func (h *MachineHandler) EditForm(w http.ResponseWriter, r *http.Request) {
	machine, ok := h.loadModifiable(w, r)
	if !ok {
		return
	}
	h.renderForm(w, r, http.StatusOK, "Edit listing", editPath(machine.ID), formFromMachine(machine), nil, machine)
}

func formFromMachine(m *models.Machine) forms.MachineForm {
	return forms.MachineForm{
		Name:        m.Name,
		Category:    m.Category,
		Price:       strconv.FormatFloat(m.Price, 'f', -1, 64),
		Description: m.Description,
	}
}

func (h *MachineHandler) Update(w http.ResponseWriter, r *http.Request) {
	machine, ok := h.loadModifiable(w, r)
	if !ok {
		return
	}
	action := editPath(machine.ID)
	if !h.parseMultipart(w, r, "Edit listing", action, machine) {
		return
	}
	form := forms.ParseMachine(r)
	if errs := forms.Validate(form); errs != nil {
		h.renderForm(w, r, http.StatusOK, "Edit listing", action, form, errs, machine)
		return
	}

	key, imageName, err := h.saveImage(r)
	if err != nil {
		slog.Error("Failed to save image", "error", err)
		http.Error(w, "Error saving image file", http.StatusInternalServerError)
		return
	}

	user := CurrentUser(r)
	var previousImage string
	_, err = h.Store.UpdateMachine(r.Context(), machine.ID, func(m *models.Machine) error {
		if !models.CanModify(user, m) {
			return store.ErrForbidden
		}
		m.Name = form.Name
		m.Category = form.Category
		m.Price = form.PriceValue()
		m.Description = form.Description
		if key != "" {
			previousImage = m.ImageFile
			m.ImageFile = key
			m.ImageName = imageName
		}
		return nil
	})
	if err != nil {
		h.discardImage(key)
		h.writeStoreError(w, err, "Error updating listing")
		return
	}
	h.discardImage(previousImage)
	slog.Info("Listing updated", "machine_id", machine.ID, "user_id", user.ID)

	h.flashAndRedirect(w, r, "success", "Listing updated!", "/")
}

func (h *MachineHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	user := CurrentUser(r)
	deleted, err := h.Store.DeleteMachine(r.Context(), id, func(m *models.Machine) error {
		if !models.CanModify(user, m) {
			return store.ErrForbidden
		}
		return nil
	})
	if err != nil {
		h.writeStoreError(w, err, "Error deleting listing")
		return
	}
	h.discardImage(deleted.ImageFile)
	slog.Info("Listing deleted", "machine_id", id, "user_id", user.ID)

	h.flashAndRedirect(w, r, "info", "Listing deleted.", "/")
}

func editPath(id int64) string {
	return "/edit/" + strconv.FormatInt(id, 10)
}

func parseID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// loadMachine writes a 404 and returns false when the path id names no listing.
func (h *MachineHandler) loadMachine(w http.ResponseWriter, r *http.Request) (*models.Machine, bool) {
	id, ok := parseID(r)
	if !ok {
		http.NotFound(w, r)
		return nil, false
	}
	machine, err := h.Store.GetMachineByID(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, err, "Error fetching listing")
		return nil, false
	}
	return machine, true
}

// loadModifiable is loadMachine plus the owner-or-admin check.
func (h *MachineHandler) loadModifiable(w http.ResponseWriter, r *http.Request) (*models.Machine, bool) {
	machine, ok := h.loadMachine(w, r)
	if !ok {
		return nil, false
	}
	if !models.CanModify(CurrentUser(r), machine) {
		http.Error(w, "Forbidden", http.StatusForbidden)
		return nil, false
	}
	return machine, true
}

func (h *MachineHandler) writeStoreError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, "Listing not found", http.StatusNotFound)
	case errors.Is(err, store.ErrForbidden):
		http.Error(w, "Forbidden", http.StatusForbidden)
	default:
		slog.Error(msg, "error", err)
		http.Error(w, msg, http.StatusInternalServerError)
	}
}

// parseMultipart parses the body within MaxUploadBytes. Plain urlencoded
// bodies are accepted too. On failure it renders the form and returns false.
func (h *MachineHandler) parseMultipart(w http.ResponseWriter, r *http.Request, title, action string, machine *models.Machine) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.MaxUploadBytes)
	err := r.ParseMultipartForm(multipartMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		err = r.ParseForm()
	}
	if err == nil {
		return true
	}

	if isBodyTooLarge(err) {
		// The body is gone; an edit falls back to the stored values.
		form := forms.MachineForm{}
		if machine != nil {
			form = formFromMachine(machine)
		}
		errs := forms.Errors{"image": tooLargeMessage(h.MaxUploadBytes)}
		h.renderForm(w, r, http.StatusRequestEntityTooLarge, title, action, form, errs, machine)
		return false
	}
	http.Error(w, "Invalid form data", http.StatusBadRequest)
	return false
}

// saveImage stores the uploaded photo, if any, and returns its key and
// sanitized original name. Both are empty when no file was sent.
func (h *MachineHandler) saveImage(r *http.Request) (string, string, error) {
	if r.MultipartForm == nil {
		return "", "", nil
	}
	files := r.MultipartForm.File["image"]
	if len(files) == 0 || files[0].Filename == "" {
		return "", "", nil
	}
	return h.storeFile(files[0])
}

func (h *MachineHandler) storeFile(header *multipart.FileHeader) (string, string, error) {
	file, err := header.Open()
	if err != nil {
		return "", "", err
	}
	defer file.Close()
	key, err := h.Uploads.Save(header.Filename, file)
	if err != nil {
		return "", "", err
	}
	return key, uploads.SanitizeName(header.Filename), nil
}

// discardImage removes a stored photo; the default sentinel is ignored.
func (h *MachineHandler) discardImage(key string) {
	if key == "" || key == models.DefaultImage {
		return
	}
	if err := h.Uploads.Remove(key); err != nil {
		slog.Error("Failed to remove image", "key", key, "error", err)
	}
}

func (h *MachineHandler) flashAndRedirect(w http.ResponseWriter, r *http.Request, kind, msg, target string) {
	session := getSession(h.SessionStore, r)
	session.AddFlash(FlashMessage{Type: kind, Message: msg})
	saveSession(w, r, session)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *MachineHandler) renderForm(w http.ResponseWriter, r *http.Request, status int, title, action string, form forms.MachineForm, errs forms.Errors, machine *models.Machine) {
	data := pageData(w, r, h.SessionStore)
	data["Title"] = title
	data["Action"] = action
	data["Form"] = form
	data["Errors"] = errs
	data["Machine"] = machine
	h.Templates.Render(w, status, "machine_form.html", data)
}
