package tether

import (
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/zoobzio/tether/kvo"
)

// validate is the shared validator instance.
var validate = newValidator()

// bindRequest holds the string arguments of a Bind call for validation.
type bindRequest struct {
	Name    string `validate:"required,keypath"`
	KeyPath string `validate:"required,keypath"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("keypath", func(fl validator.FieldLevel) bool {
		return kvo.ValidatePath(fl.Field().String()) == nil
	})
	return v
}

// validateBind checks the arguments of a Bind call and returns the resolved
// target.
func validateBind(bound Bindable, name string, target kvo.Ref, keyPath string) (kvo.Observable, error) {
	if kvo.IsNil(bound) || bound.Bindings() == nil {
		return nil, fmt.Errorf("%w: bound object is nil", ErrInvalidArgument)
	}
	if lifetime, ok := bound.(kvo.Lifetime); ok && lifetime.Released() {
		return nil, fmt.Errorf("%w: bound object is released", ErrInvalidArgument)
	}
	if kvo.IsNil(target) {
		return nil, fmt.Errorf("%w: target is nil", ErrInvalidArgument)
	}
	if err := validate.Struct(bindRequest{Name: name, KeyPath: keyPath}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidArgument, err)
	}

	obj := target.Value()
	if obj == nil {
		return nil, fmt.Errorf("%w: target does not resolve", ErrInvalidArgument)
	}
	if kvo.Same(bound, obj) && kvo.Overlaps(name, keyPath) {
		return nil, fmt.Errorf("%w: %q is bound to its own key path %q", ErrInvalidArgument, name, keyPath)
	}
	return obj, nil
}
