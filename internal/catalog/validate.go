package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"gamehub/pkg/apperr"
	"gamehub/pkg/models"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// report json field names ("games[0].title") instead of Go names
		validate.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		_ = validate.RegisterValidation("source_type", func(fl validator.FieldLevel) bool {
			return models.SourceType(fl.Field().String()).Valid()
		})
	})
	return validate
}

// Validate rejects a snapshot with an unknown platform, a missing games
// list or an entry without a non-blank title.
func Validate(s *models.CatalogSnapshot) error {
	if s == nil {
		return apperr.Validation("", "snapshot is required")
	}
	if err := getValidator().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) || len(verrs) == 0 {
			return apperr.Validation("", err.Error())
		}
		fe := verrs[0]
		return apperr.Validation(fieldPath(fe.Namespace()), fieldMessage(fe))
	}
	for i, e := range s.Games {
		if strings.TrimSpace(e.Title) == "" {
			return apperr.Validation(fmt.Sprintf("games[%d].title", i), "must not be blank")
		}
	}
	return nil
}

func fieldPath(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "source_type":
		names := make([]string, 0, len(models.SourceTypes))
		for _, t := range models.SourceTypes {
			names = append(names, string(t))
		}
		return fmt.Sprintf("must be one of: %s", strings.Join(names, ", "))
	default:
		return fmt.Sprintf("failed %s", fe.Tag())
	}
}

// DecodeSnapshot parses and validates a snapshot document.
func DecodeSnapshot(data []byte) (*models.CatalogSnapshot, error) {
	var raw struct {
		Platform string          `json:"platform"`
		Games    json.RawMessage `json:"games"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, apperr.Validation("", "invalid json: "+err.Error())
	}
	games := bytes.TrimSpace(raw.Games)
	if len(games) == 0 || games[0] != '[' {
		return nil, apperr.Validation("games", "must be a list")
	}

	s := &models.CatalogSnapshot{Platform: models.SourceType(strings.ToLower(strings.TrimSpace(raw.Platform)))}
	if err := json.Unmarshal(games, &s.Games); err != nil {
		return nil, apperr.Validation("games", "invalid entry: "+err.Error())
	}
	if err := Validate(s); err != nil {
		return nil, err
	}
	return s, nil
}
