package validation

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// A raw video id or any link long enough to plausibly contain one. Actual id
// extraction happens in the playlist package; this only rejects junk early.
// Go's regexp caps a single repeat count at 1000, so 11..2048 is split into
// consecutive repetitions that together match the same range.
var linkInputRegex = regexp.MustCompile(`^[^\s]{11,1000}[^\s]{0,1000}[^\s]{0,48}$`)

func init() {
	MustRegisterGin("videolink", ValidateVideoLink)
	MustRegisterGinAlias("linkkey", "min=1,max=64")
}

// ValidateVideoLink checks the add-link input: one non-blank token.
func ValidateVideoLink(fl validator.FieldLevel) bool {
	return linkInputRegex.MatchString(fl.Field().String())
}
