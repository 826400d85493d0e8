package adapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
	"golang.org/x/net/html"

	"github.com/hpn/hpn-p-router/internal/challenge"
)

const nextDataID = "__NEXT_DATA__"

// seedsSchema rejects a zero modulus since the challenge would be NaN, which
// cannot be encoded into the payload.
const seedsSchema = `{
  "type": "object",
  "required": ["multiplier", "addend", "modulus"],
  "properties": {
    "multiplier": {"type": "number"},
    "addend": {"type": "number"},
    "modulus": {"type": "number", "not": {"enum": [0]}}
  }
}`

var loadSeedsSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(seedsSchema))
})

type nextData struct {
	Props struct {
		PageProps struct {
			ChallengeSeeds json.RawMessage `json:"challengeSeeds"`
		} `json:"pageProps"`
	} `json:"props"`
}

// ExtractSeeds finds the embedded page data in the search page HTML and
// returns the challenge seeds it carries.
func ExtractSeeds(page string) (challenge.Seeds, error) {
	raw, err := findNextData(page)
	if err != nil {
		return challenge.Seeds{}, &SeedAcquisitionError{Op: "locate", Err: err}
	}

	var data nextData
	if err := json.Unmarshal([]byte(raw), &data); err != nil {
		return challenge.Seeds{}, &SeedAcquisitionError{Op: "decode", Err: err}
	}

	seedsJSON := data.Props.PageProps.ChallengeSeeds
	if len(seedsJSON) == 0 {
		return challenge.Seeds{}, &SeedAcquisitionError{
			Op:  "decode",
			Err: errors.New("props.pageProps.challengeSeeds is missing"),
		}
	}

	if err := validateSeeds(seedsJSON); err != nil {
		return challenge.Seeds{}, &SeedAcquisitionError{Op: "validate", Err: err}
	}

	var seeds challenge.Seeds
	if err := json.Unmarshal(seedsJSON, &seeds); err != nil {
		return challenge.Seeds{}, &SeedAcquisitionError{Op: "decode", Err: err}
	}
	return seeds, nil
}

func validateSeeds(raw json.RawMessage) error {
	schema, err := loadSeedsSchema()
	if err != nil {
		return fmt.Errorf("failed to compile seeds schema: %w", err)
	}

	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return fmt.Errorf("failed to validate seeds: %w", err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("invalid challenge seeds: %s", strings.Join(msgs, "; "))
}

// findNextData returns the text of the <script id="__NEXT_DATA__"> element.
func findNextData(page string) (string, error) {
	z := html.NewTokenizer(strings.NewReader(page))

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return "", fmt.Errorf("no %s script in page", nextDataID)
			}
			return "", z.Err()

		case html.StartTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "script" || !hasAttr || !hasID(z, nextDataID) {
				continue
			}
			if z.Next() != html.TextToken {
				return "", fmt.Errorf("%s script is empty", nextDataID)
			}
			text := strings.TrimSpace(string(z.Text()))
			if text == "" {
				return "", fmt.Errorf("%s script is empty", nextDataID)
			}
			return text, nil
		}
	}
}

func hasID(z *html.Tokenizer, id string) bool {
	for {
		key, val, more := z.TagAttr()
		if string(key) == "id" && string(val) == id {
			return true
		}
		if !more {
			return false
		}
	}
}
