// Package forms holds the per-route form schemas and their validation.
package forms

import (
	"fmt"
	"math"
	"net/http"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// AllowedImageExts lists the accepted photo extensions, lower case.
var AllowedImageExts = []string{".jpg", ".png", ".jpeg"}

type RegisterForm struct {
	Username        string `form:"username" validate:"required,min=2,max=20"`
	Phone           string `form:"phone" validate:"required,max=20"`
	Password        string `form:"password" validate:"required,max=72"`
	ConfirmPassword string `form:"confirm_password" validate:"required,eqfield=Password"`
}

type LoginForm struct {
	Username string `form:"username" validate:"required"`
	Password string `form:"password" validate:"required"`
}

type MachineForm struct {
	Name        string `form:"name" validate:"required,max=100"`
	Category    string `form:"category" validate:"required,max=50"`
	Price       string `form:"price" validate:"required,price"`
	Description string `form:"description"`
	// ImageName is the client file name of the uploaded photo, empty when none.
	ImageName string `form:"image" validate:"omitempty,imageext"`
}

// PriceValue returns the parsed price. Only meaningful after Validate succeeded.
func (f MachineForm) PriceValue() float64 {
	p, _ := strconv.ParseFloat(f.Price, 64)
	return p
}

// Errors maps a form field name to its message.
type Errors map[string]string

func (e Errors) Add(field, msg string) {
	if _, exists := e[field]; !exists {
		e[field] = msg
	}
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("form")
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("price", func(fl validator.FieldLevel) bool {
		p, err := strconv.ParseFloat(fl.Field().String(), 64)
		return err == nil && p > 0 && !math.IsInf(p, 0) && !math.IsNaN(p)
	})
	_ = v.RegisterValidation("imageext", func(fl validator.FieldLevel) bool {
		return AllowedImageExt(fl.Field().String())
	})
	return v
}

// AllowedImageExt reports whether name ends in an allowed image extension.
func AllowedImageExt(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedImageExts {
		if ext == allowed {
			return true
		}
	}
	return false
}

// Validate checks form against its struct tags. It returns nil when valid.
func Validate(form any) Errors {
	err := validate.Struct(form)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return Errors{"form": "Invalid form."}
	}
	errs := Errors{}
	for _, fe := range verrs {
		errs.Add(fe.Field(), message(fe))
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "min":
		return fmt.Sprintf("Must be at least %s characters.", fe.Param())
	case "max":
		return fmt.Sprintf("Must be at most %s characters.", fe.Param())
	case "eqfield":
		return "Passwords do not match."
	case "price":
		return "Price must be a positive number."
	case "imageext":
		return "Only JPG, JPEG and PNG images are allowed."
	default:
		return "Invalid value."
	}
}

func ParseRegister(r *http.Request) RegisterForm {
	return RegisterForm{
		Username:        strings.TrimSpace(r.PostFormValue("username")),
		Phone:           strings.TrimSpace(r.PostFormValue("phone")),
		Password:        r.PostFormValue("password"),
		ConfirmPassword: r.PostFormValue("confirm_password"),
	}
}

func ParseLogin(r *http.Request) LoginForm {
	return LoginForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
}

// ParseMachine reads the text fields of a parsed multipart form plus the
// name of the uploaded image, if any.
func ParseMachine(r *http.Request) MachineForm {
	f := MachineForm{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Category:    strings.TrimSpace(r.PostFormValue("category")),
		Price:       strings.TrimSpace(r.PostFormValue("price")),
		Description: r.PostFormValue("description"),
	}
	if r.MultipartForm != nil {
		if files := r.MultipartForm.File["image"]; len(files) > 0 && files[0].Filename != "" {
			f.ImageName = files[0].Filename
		}
	}
	return f
}
