// Package report renders per-target print patterns such as
// "{component}-{version}-{release}" from a closed set of named fields.
package report

import (
	"fmt"
	"sort"
	"strings"
)

// Field is a named value a pattern may reference.
type Field string

// Fields accepted in patterns.
const (
	FieldType       Field = "type"
	FieldNamespace  Field = "namespace"
	FieldName       Field = "name"
	FieldComponent  Field = "component"
	FieldImage      Field = "image"
	FieldVersion    Field = "version"
	FieldRelease    Field = "release"
	FieldBuild      Field = "build"      // {component}-{version}-{release}
	FieldRepository Field = "repository" // {image}:{version}-{release}
	FieldLF         Field = "lf"
)

var knownFields = map[Field]bool{
	FieldType: true, FieldNamespace: true, FieldName: true, FieldComponent: true,
	FieldImage: true, FieldVersion: true, FieldRelease: true, FieldBuild: true,
	FieldRepository: true, FieldLF: true,
}

// KnownFields returns the accepted field names, sorted.
func KnownFields() []string {
	names := make([]string, 0, len(knownFields))
	for f := range knownFields {
		names = append(names, string(f))
	}
	sort.Strings(names)
	return names
}

// Values holds the resolved values for one target.
type Values struct {
	Type      string
	Namespace string
	Name      string
	Component string
	Image     string
	Version   string
	Release   string
}

func (v Values) lookup(f Field) string {
	switch f {
	case FieldType:
		return v.Type
	case FieldNamespace:
		return v.Namespace
	case FieldName:
		return v.Name
	case FieldComponent:
		return v.Component
	case FieldImage:
		return v.Image
	case FieldVersion:
		return v.Version
	case FieldRelease:
		return v.Release
	case FieldBuild:
		return v.Component + "-" + v.Version + "-" + v.Release
	case FieldRepository:
		return v.Image + ":" + v.Version + "-" + v.Release
	case FieldLF:
		return "\n"
	}
	return ""
}

// segment is literal text or a field reference.
type segment struct {
	literal string
	field   Field
}

// Pattern is a compiled print pattern.
type Pattern struct {
	source   string
	segments []segment
	needs    map[Field]bool
}

// Compile parses pattern. A pattern without "{" is treated as a single field
// name ("build" means "{build}"). Unknown fields and unbalanced braces are
// rejected.
func Compile(pattern string) (*Pattern, error) {
	if !strings.Contains(pattern, "{") {
		pattern = "{" + strings.TrimSpace(pattern) + "}"
	}

	p := &Pattern{source: pattern, needs: map[Field]bool{}}
	rest := pattern
	for rest != "" {
		open := strings.IndexByte(rest, '{')
		closeIdx := strings.IndexByte(rest, '}')
		if open < 0 {
			if closeIdx >= 0 {
				return nil, fmt.Errorf("unbalanced '}' in pattern %q", pattern)
			}
			p.segments = append(p.segments, segment{literal: rest})
			break
		}
		if closeIdx >= 0 && closeIdx < open {
			return nil, fmt.Errorf("unbalanced '}' in pattern %q", pattern)
		}
		if open > 0 {
			p.segments = append(p.segments, segment{literal: rest[:open]})
		}
		rest = rest[open+1:]
		end := strings.IndexByte(rest, '}')
		if end < 0 {
			return nil, fmt.Errorf("unterminated '{' in pattern %q", pattern)
		}
		name := Field(rest[:end])
		if strings.ContainsRune(string(name), '{') {
			return nil, fmt.Errorf("nested '{' in pattern %q", pattern)
		}
		if !knownFields[name] {
			return nil, fmt.Errorf("unrecognized field {%s} in pattern %q (known: %s)",
				name, pattern, strings.Join(KnownFields(), ", "))
		}
		p.segments = append(p.segments, segment{field: name})
		p.needs[name] = true
		rest = rest[end+1:]
	}
	return p, nil
}

// Needs reports whether rendering requires f. {build} and {repository}
// imply the fields they expand to.
func (p *Pattern) Needs(f Field) bool {
	if p.needs[f] {
		return true
	}
	switch f {
	case FieldComponent:
		return p.needs[FieldBuild]
	case FieldImage:
		return p.needs[FieldRepository]
	case FieldVersion, FieldRelease:
		return p.needs[FieldBuild] || p.needs[FieldRepository]
	}
	return false
}

// Render substitutes v into the pattern.
func (p *Pattern) Render(v Values) string {
	var b strings.Builder
	for _, seg := range p.segments {
		if seg.field == "" {
			b.WriteString(seg.literal)
			continue
		}
		b.WriteString(v.lookup(seg.field))
	}
	return b.String()
}

func (p *Pattern) String() string { return p.source }
