// Package profile decodes the loosely shaped profile and recommendation
// documents produced by the web client into typed values.
package profile

import (
	"fmt"
	"strings"

	"github.com/mitchellh/mapstructure"
)

type Profile struct {
	FirstName         string   `mapstructure:"firstName"`
	LastName          string   `mapstructure:"lastName"`
	Email             string   `mapstructure:"email"`
	School            string   `mapstructure:"school"`
	Major             string   `mapstructure:"major"`
	GPA               string   `mapstructure:"gpa"`
	GraduationYear    string   `mapstructure:"graduationYear"`
	DesiredOccupation string   `mapstructure:"desiredOccupation"`
	TargetCompanies   []string `mapstructure:"targetCompanies"`
	Skills            []string `mapstructure:"skills"`
	Interests         []string `mapstructure:"interests"`
}

// Name joins first and last name.
func (p Profile) Name() string {
	return strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
}

// IsEmpty reports whether no field carries a value.
func (p Profile) IsEmpty() bool {
	return p.Name() == "" &&
		strings.TrimSpace(p.Email) == "" &&
		strings.TrimSpace(p.School) == "" &&
		strings.TrimSpace(p.Major) == "" &&
		strings.TrimSpace(p.GPA) == "" &&
		strings.TrimSpace(p.GraduationYear) == "" &&
		strings.TrimSpace(p.DesiredOccupation) == "" &&
		len(p.TargetCompanies) == 0 &&
		len(p.Skills) == 0 &&
		len(p.Interests) == 0
}

// UserContext is everything known about a user apart from the transcript.
type UserContext struct {
	Profile         Profile
	Recommendations Recommendations
	ResumeText      string
}

// DecodeProfile converts a client form document into a Profile. Numbers are
// accepted where strings are expected and comma separated strings where
// lists are expected.
func DecodeProfile(raw map[string]any) (Profile, error) {
	var p Profile
	if len(raw) == 0 {
		return p, nil
	}

	if err := decode(raw, &p); err != nil {
		return Profile{}, fmt.Errorf("decode profile: %w", err)
	}

	p.TargetCompanies = compact(p.TargetCompanies)
	p.Skills = compact(p.Skills)
	p.Interests = compact(p.Interests)

	return p, nil
}

func decode(input any, target any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToSliceHookFunc(","),
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return err
	}
	return decoder.Decode(input)
}

func compact(values []string) []string {
	out := values[:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
