package application_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/railpanel/internal/application"
	"github.com/ericfisherdev/railpanel/internal/domain/model"
)

func TestExtractPlatform(t *testing.T) {
	tests := []struct {
		name string
		run  string
		want model.Platform
	}{
		{"ms with space", "switch-18 MS350 Stack Build 1", model.Platform{Family: model.FamilyMS, Model: "MS350"}},
		{"ms with dash", "nightly ms-425 stk", model.Platform{Family: model.FamilyMS, Model: "MS425"}},
		{"ms with blank", "MS 120 standalone", model.Platform{Family: model.FamilyMS, Model: "MS120"}},
		{"ms with underscore", "cs-1_MS_390_sngl", model.Platform{Family: model.FamilyMS, Model: "MS390"}},
		{"catalyst longest wins", "C9200CX-12P single", model.Platform{Family: model.FamilyCatalyst, Model: "C9200CX"}},
		{"catalyst suffix letter", "C9300L-48 Switch-A-01", model.Platform{Family: model.FamilyCatalyst, Model: "C9300L"}},
		{"catalyst plain", "aurora2 c9500 regression", model.Platform{Family: model.FamilyCatalyst, Model: "C9500"}},
		{"longer number is not a model", "MS3500 lab", model.PlatformUnknown},
		{"embedded in word", "XMS350", model.PlatformUnknown},
		{"nothing known", "Nightly regression", model.PlatformUnknown},
		{"empty", "", model.PlatformUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, application.ExtractPlatform(tt.run))
		})
	}
}

func TestExtractDeviceType(t *testing.T) {
	tests := []struct {
		run  string
		want model.DeviceType
	}{
		{"switch-18 MS350 Stack Build 1", model.DeviceStack},
		{"MS350 stacked pair", model.DeviceStack},
		{"MS350 STK", model.DeviceStack},
		{"MS350 standalone", model.DeviceSingle},
		{"MS350 single unit", model.DeviceSingle},
		{"MS350_SNGL", model.DeviceSingle},
		{"C9300 Switch-B-12", model.DeviceSingle},
		{"MS350 single then stack", model.DeviceStack},
		{"MS350 STKX", model.DeviceUnknown},
		{"MS350 SNGLE", model.DeviceUnknown},
		{"switch-18 build", model.DeviceUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.run, func(t *testing.T) {
			assert.Equal(t, tt.want, application.ExtractDeviceType(tt.run))
		})
	}
}

func TestExtractors_CaseInsensitiveAndIdempotent(t *testing.T) {
	names := []string{
		"switch-18 MS350 Stack Build 1",
		"C9200CX-12P Switch-A-01",
		"nightly ms 425 stk",
		"Nightly regression",
	}
	for _, name := range names {
		wantPlatform := application.ExtractPlatform(name)
		wantDevice := application.ExtractDeviceType(name)

		for _, variant := range []string{name, strings.ToUpper(name), strings.ToLower(name), swapCase(name)} {
			assert.Equal(t, wantPlatform, application.ExtractPlatform(variant), variant)
			assert.Equal(t, wantDevice, application.ExtractDeviceType(variant), variant)
		}
		assert.Equal(t, wantPlatform, application.ExtractPlatform(name), "repeat call")
		assert.Equal(t, wantDevice, application.ExtractDeviceType(name), "repeat call")
	}
}

func swapCase(s string) string {
	b := []byte(s)
	for i, c := range b {
		switch {
		case c >= 'a' && c <= 'z':
			b[i] = c - 'a' + 'A'
		case c >= 'A' && c <= 'Z':
			b[i] = c - 'A' + 'a'
		}
	}
	return string(b)
}
