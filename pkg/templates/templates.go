package templates

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pdxmph/imgdedup/pkg/types"
)

// Variables holds all the available template variables
type Variables struct {
	Name     string // name as supplied
	Status   string // accepted, duplicate, skipped
	Family   string // image, document, unsupported
	Match    string // label of the earlier item a duplicate matched
	Distance int    // Hamming distance for image duplicates
	Key      string // digest or fingerprint of accepted items
	MIME     string // sniffed content type of accepted items
	Path     string // where an accepted item was stored
	Batch    string // batch ID
}

var (
	// Match %variable% or %var1|var2|var3%
	templatePattern = regexp.MustCompile(`%([^%]+)%`)
)

// DefaultTemplates returns the built-in line formats
func DefaultTemplates() map[string]string {
	return map[string]string{
		"text":     "%status%\t%name%\t%match|key%",
		"names":    "%name%",
		"markdown": "- **%status%** `%name%` %match|path%",
		"csv":      "%name%,%family%,%status%,%match%,%distance%",
	}
}

// Process renders a template with the given variables
func Process(template string, vars Variables) string {
	return templatePattern.ReplaceAllStringFunc(template, func(match string) string {
		content := strings.Trim(match, "%")

		// First non-empty value of a fallback chain wins
		for _, part := range strings.Split(content, "|") {
			if value := getVariable(strings.TrimSpace(part), vars); value != "" {
				return value
			}
		}
		return ""
	})
}

// getVariable returns the value of a single variable
func getVariable(name string, vars Variables) string {
	switch name {
	case "name":
		return vars.Name
	case "status":
		return vars.Status
	case "family":
		return vars.Family
	case "match":
		return vars.Match
	case "distance":
		if vars.Status != "duplicate" {
			return ""
		}
		return strconv.Itoa(vars.Distance)
	case "key":
		return vars.Key
	case "mime":
		return vars.MIME
	case "path":
		return vars.Path
	case "batch":
		return vars.Batch
	default:
		return ""
	}
}

// BuildVariables creates template variables from a decision
func BuildVariables(batchID string, d types.DecisionView) Variables {
	return Variables{
		Name:     d.Name,
		Status:   d.Status,
		Family:   d.Family,
		Match:    d.MatchedLabel,
		Distance: d.Distance,
		Key:      d.Key,
		MIME:     d.MIME,
		Path:     d.Path,
		Batch:    batchID,
	}
}
