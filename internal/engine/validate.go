package engine

import (
	"fmt"
	"strings"

	"github.com/jackmisner/BrewTrackerAndroid-sub003/internal/syncerr"
	"github.com/tidwall/gjson"
)

// validatePayload checks a mutation body before anything is written.
// Validation failures surface synchronously with no offline fallback:
// persisting invalid data locally would only delay the inevitable
// server rejection.
//
// requireNestedIDs applies to records that already carry server
// identity: their nested ingredient entries must each name an id, or
// the server cannot associate them during sync.
func validatePayload(payload []byte, requireNestedIDs bool) error {
	if len(payload) == 0 || !gjson.ValidBytes(payload) {
		return &syncerr.ValidationError{Field: "body", Reason: "must be a JSON document"}
	}

	root := gjson.ParseBytes(payload)
	if !root.IsObject() {
		return &syncerr.ValidationError{Field: "body", Reason: "must be a JSON object"}
	}

	name := root.Get("name")
	if !name.Exists() || strings.TrimSpace(name.String()) == "" {
		return &syncerr.ValidationError{Field: "name", Reason: "required"}
	}

	if !requireNestedIDs {
		return nil
	}

	ingredients := root.Get("ingredients")
	if !ingredients.Exists() {
		return nil
	}

	if !ingredients.IsArray() {
		return &syncerr.ValidationError{Field: "ingredients", Reason: "must be an array"}
	}

	var verr error

	i := 0

	ingredients.ForEach(func(_, ing gjson.Result) bool {
		if ing.Get("id").String() == "" {
			verr = &syncerr.ValidationError{
				Field:  fmt.Sprintf("ingredients.%d.id", i),
				Reason: "required for server sync",
			}

			return false
		}

		i++

		return true
	})

	return verr
}
