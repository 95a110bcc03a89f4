package revision

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/projectsmartedu/SmartEducation-sub001/core"
)

var (
	typeTag  = "revision_type"
	typeText = "must be one of quiz, review, practice, flashcard, summary"

	priorityTag  = "revision_priority"
	priorityText = "must be one of low, medium, high, critical"
)

// InitValidators registers the revision validation tags.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(typeTag, typeValidation)
	core.RegisterCustomTranslation(validate, translator, typeTag, typeText)

	_ = validate.RegisterValidation(priorityTag, priorityValidation)
	core.RegisterCustomTranslation(validate, translator, priorityTag, priorityText)
}

func typeValidation(fl validator.FieldLevel) bool {
	val := Type(fl.Field().String())
	for _, typ := range Types {
		if val == typ {
			return true
		}
	}
	return false
}

func priorityValidation(fl validator.FieldLevel) bool {
	val := Priority(fl.Field().String())
	for _, p := range Priorities {
		if val == p {
			return true
		}
	}
	return false
}
