package extract

import (
	"fmt"
	"strings"

	"github.com/cloo-solutions/coachkb/internal/domain"
)

// ValidateKnowledge checks that a curated knowledge file has the layout the
// seeding tools expect. It is stricter than extraction, which accepts any
// well-formed file.
//
//   - .json: root mapping of categories, each a mapping of subcategories,
//     each carrying a "strategies" sequence
//   - .csv: header with "category" and "strategy" columns
//   - .txt: every non-blank section contains "Strategy:"
func ValidateKnowledge(src Source) error {
	var err error
	switch src.Ext() {
	case ".json":
		err = validateKnowledgeJSON(src.Data)
	case ".csv":
		err = validateKnowledgeCSV(src.Data)
	case ".txt":
		err = validateKnowledgeText(src.Data)
	default:
		return domain.NewDomainErrorWithCause(domain.ErrCodeUnsupportedFormat, "unsupported file format",
			fmt.Errorf("%s: extension %q", src.Name, src.Ext()))
	}
	if err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid knowledge file",
			fmt.Errorf("%s: %w", src.Name, err))
	}
	return nil
}

func validateKnowledgeJSON(data []byte) error {
	root, err := ParseJSON(data)
	if err != nil {
		return err
	}
	if root.Kind != MappingNode {
		return fmt.Errorf("json must have a root object")
	}
	for _, category := range root.Fields {
		if category.Value == nil || category.Value.Kind != MappingNode {
			return fmt.Errorf("category %q must contain an object", category.Key)
		}
		for _, sub := range category.Value.Fields {
			if sub.Value == nil || sub.Value.Kind != MappingNode {
				return fmt.Errorf("subcategory %q must contain an object", sub.Key)
			}
			strategies := fieldValue(sub.Value, "strategies")
			if strategies == nil {
				return fmt.Errorf("missing \"strategies\" in %q", sub.Key)
			}
			if strategies.Kind != SequenceNode {
				return fmt.Errorf("\"strategies\" must be a list in %q", sub.Key)
			}
		}
	}
	return nil
}

func fieldValue(n *Node, key string) *Node {
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value
		}
	}
	return nil
}

func validateKnowledgeCSV(data []byte) error {
	records, err := ReadCSV(data)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return fmt.Errorf("csv has no header")
	}
	have := make(map[string]bool, len(records[0]))
	for _, col := range records[0] {
		have[strings.TrimSpace(col)] = true
	}
	for _, required := range []string{"category", "strategy"} {
		if !have[required] {
			return fmt.Errorf("csv must contain columns: category, strategy")
		}
	}
	return nil
}

func validateKnowledgeText(data []byte) error {
	text, _ := DecodeText(data)
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text file has no sections")
	}
	for i, section := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(section) == "" {
			continue
		}
		if !strings.Contains(section, "Strategy:") {
			return fmt.Errorf("section %d has no \"Strategy:\" line", i+1)
		}
	}
	return nil
}
