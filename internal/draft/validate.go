package draft

import (
	"encoding/json"
	"fmt"
)

// ValidationError names the first location where a generated document
// departs from the expected SFDT shape.
type ValidationError struct {
	Path   string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid document at %s: %s", e.Path, e.Reason)
}

func invalid(path, reason string) error {
	return &ValidationError{Path: path, Reason: reason}
}

// Validate decodes doc and checks the structure the editor requires at every
// level. It returns the decoded tree on success.
func Validate(doc string) (map[string]any, error) {
	var root map[string]any
	if err := json.Unmarshal([]byte(doc), &root); err != nil {
		return nil, invalid("$", "not a JSON object: "+err.Error())
	}

	sections, ok := root["sections"].([]any)
	if !ok {
		return nil, invalid("$.sections", "must be an array")
	}
	if len(sections) == 0 {
		return nil, invalid("$.sections", "must not be empty")
	}
	for si, rawSection := range sections {
		sectionPath := fmt.Sprintf("$.sections[%d]", si)
		section, ok := rawSection.(map[string]any)
		if !ok {
			return nil, invalid(sectionPath, "must be an object")
		}
		blocks, ok := section["blocks"].([]any)
		if !ok {
			return nil, invalid(sectionPath+".blocks", "must be an array")
		}
		if len(blocks) == 0 {
			return nil, invalid(sectionPath+".blocks", "must not be empty")
		}
		for bi, rawBlock := range blocks {
			if err := validateBlock(fmt.Sprintf("%s.blocks[%d]", sectionPath, bi), rawBlock); err != nil {
				return nil, err
			}
		}
	}
	return root, nil
}

func validateBlock(path string, rawBlock any) error {
	block, ok := rawBlock.(map[string]any)
	if !ok {
		return invalid(path, "must be an object")
	}
	if _, ok := block["paragraphFormat"].(map[string]any); !ok {
		return invalid(path+".paragraphFormat", "must be an object")
	}
	inlines, ok := block["inlines"].([]any)
	if !ok {
		return invalid(path+".inlines", "must be an array")
	}
	for ii, rawInline := range inlines {
		if err := validateInline(fmt.Sprintf("%s.inlines[%d]", path, ii), rawInline); err != nil {
			return err
		}
	}
	return nil
}

func validateInline(path string, rawInline any) error {
	inline, ok := rawInline.(map[string]any)
	if !ok {
		return invalid(path, "must be an object")
	}
	if _, ok := inline["text"].(string); !ok {
		return invalid(path+".text", "must be a string")
	}
	format, ok := inline["characterFormat"].(map[string]any)
	if !ok {
		return invalid(path+".characterFormat", "must be an object")
	}
	for _, key := range []string{"bold", "italic"} {
		if value, present := format[key]; present {
			if _, ok := value.(bool); !ok {
				return invalid(path+".characterFormat."+key, "must be a boolean")
			}
		}
	}
	if value, present := format["fontSize"]; present {
		if _, ok := value.(float64); !ok {
			return invalid(path+".characterFormat.fontSize", "must be a number")
		}
	}
	return nil
}
