package application

import (
	"regexp"
	"strings"

	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

// Known hardware identifiers per family. Matching is against the upper-cased
// run name, so the vocabulary is stored upper-case.
var (
	msModels = []string{
		"MS120", "MS125", "MS130", "MS150",
		"MS210", "MS220", "MS225", "MS250",
		"MS320", "MS350", "MS355", "MS390",
		"MS410", "MS420", "MS425", "MS450",
	}
	catalystModels = []string{
		"C9200", "C9200L", "C9200CX", "C9300", "C9300L", "C9300X",
		"C9400", "C9500", "C9600", "C9800",
		"C3850", "C3650", "C2960",
	}
)

// msSeparator matches "MS-350", "MS 350" and "MS_350" so they normalize to MS350.
var msSeparator = regexp.MustCompile(`(^|[^A-Z0-9])MS[\s_-]+(\d{3})`)

// labSingle is the lab convention "Switch-<letter>-" for standalone units.
var labSingle = regexp.MustCompile(`(^|[^A-Z0-9])SWITCH-[A-Z]-`)

var (
	stackWords  = []string{"STACKED", "STACK"}
	stackTokens = []string{"STK"}
	singleWords = []string{"STANDALONE", "SINGLE"}
	singleToken = []string{"SNGL"}
)

// ExtractPlatform derives the hardware platform from a run's display name.
// The longest known identifier found in the name wins; a name with none
// yields model.PlatformUnknown.
func ExtractPlatform(runName string) model.Platform {
	name := msSeparator.ReplaceAllString(strings.ToUpper(runName), "${1}MS${2}")

	best := model.PlatformUnknown
	consider := func(family model.PlatformFamily, models []string) {
		for _, m := range models {
			if len(m) <= len(best.Model) && !best.IsUnknown() {
				continue
			}
			if containsModel(name, m) {
				best = model.Platform{Family: family, Model: m}
			}
		}
	}
	consider(model.FamilyMS, msModels)
	consider(model.FamilyCatalyst, catalystModels)

	return best
}

// ExtractDeviceType derives single vs stack from a run's display name. Stack
// keywords take precedence when both kinds appear.
func ExtractDeviceType(runName string) model.DeviceType {
	name := strings.ToUpper(runName)

	if containsAny(name, stackWords) || containsAnyToken(name, stackTokens) {
		return model.DeviceStack
	}
	if containsAny(name, singleWords) || containsAnyToken(name, singleToken) || labSingle.MatchString(name) {
		return model.DeviceSingle
	}
	return model.DeviceUnknown
}

// containsModel reports whether id occurs in s with no alphanumeric before it
// and no digit after it, so MS350 does not match inside MS3500 but C9300 still
// matches C9300-48P.
func containsModel(s, id string) bool {
	for i := 0; ; {
		j := strings.Index(s[i:], id)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(id)
		leftOK := start == 0 || !isAlnum(s[start-1])
		rightOK := end == len(s) || !isDigit(s[end])
		if leftOK && rightOK {
			return true
		}
		i = start + 1
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func containsAnyToken(s string, tokens []string) bool {
	for _, t := range tokens {
		if containsToken(s, t) {
			return true
		}
	}
	return false
}

// containsToken reports whether tok occurs in s delimited by non-alphanumeric
// characters or the ends of s. An empty token never matches.
func containsToken(s, tok string) bool {
	if tok == "" {
		return false
	}
	for i := 0; ; {
		j := strings.Index(s[i:], tok)
		if j < 0 {
			return false
		}
		start := i + j
		end := start + len(tok)
		if (start == 0 || !isAlnum(s[start-1])) && (end == len(s) || !isAlnum(s[end])) {
			return true
		}
		i = start + 1
	}
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

func isAlnum(b byte) bool {
	return isDigit(b) || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
