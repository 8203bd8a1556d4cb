package distgit

import (
	"regexp"
	"strings"
)

// DockerfileName is the file stamped in image distgits.
const DockerfileName = "Dockerfile"

// labelPattern matches key=value pairs on LABEL instructions, including
// continuation lines. Keys are only matched after whitespace so
// "com.redhat.version" is not mistaken for "version".
func labelPattern(key string) *regexp.Regexp {
	return regexp.MustCompile(`(^LABEL[ \t]+|[ \t])` + regexp.QuoteMeta(key) + `=("[^"\n]*"|[^\s\\]*)`)
}

// Labels returns the LABEL key/value pairs of a Dockerfile. Later
// definitions win.
func Labels(dockerfile string) map[string]string {
	labels := map[string]string{}
	for _, instr := range instructions(dockerfile) {
		fields := strings.Fields(instr)
		if len(fields) == 0 || !strings.EqualFold(fields[0], "LABEL") {
			continue
		}
		for _, kv := range splitLabelArgs(strings.TrimSpace(instr[len(fields[0]):])) {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				continue
			}
			labels[k] = strings.Trim(v, `"`)
		}
	}
	return labels
}

// SetLabel rewrites every definition of key to value, or appends a LABEL
// instruction when key is not defined.
func SetLabel(dockerfile, key, value string) string {
	re := labelPattern(key)
	lines := strings.Split(dockerfile, "\n")
	found := false
	for i, line := range lines {
		if !isLabelLine(lines, i) {
			continue
		}
		if re.MatchString(line) {
			found = true
			lines[i] = re.ReplaceAllString(line, "${1}"+key+`="`+escapeReplacement(value)+`"`)
		}
	}
	if found {
		return strings.Join(lines, "\n")
	}

	trailer := ""
	if strings.HasSuffix(dockerfile, "\n") {
		dockerfile = strings.TrimSuffix(dockerfile, "\n")
		trailer = "\n"
	}
	return dockerfile + "\n" + `LABEL ` + key + `="` + value + `"` + trailer
}

// RemoveLabel deletes every definition of key. LABEL instructions left
// without arguments are dropped.
func RemoveLabel(dockerfile, key string) string {
	re := labelPattern(key)
	lines := strings.Split(dockerfile, "\n")
	out := make([]string, 0, len(lines))
	for i, line := range lines {
		if !isLabelLine(lines, i) || !re.MatchString(line) {
			out = append(out, line)
			continue
		}
		continued := strings.HasSuffix(strings.TrimRight(line, " \t"), `\`)
		line = re.ReplaceAllStringFunc(line, func(m string) string {
			if strings.HasPrefix(m, "LABEL") {
				return "LABEL "
			}
			return ""
		})
		rest := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line), `\`))
		switch {
		case rest == "LABEL" && continued:
			out = append(out, `LABEL \`)
		case rest == "LABEL" || rest == "":
			// Dropping the last line of a continuation ends the instruction
			// on the previous line.
			if !continued && len(out) > 0 {
				prev := strings.TrimRight(out[len(out)-1], " \t")
				if strings.HasSuffix(prev, `\`) {
					out[len(out)-1] = strings.TrimRight(strings.TrimSuffix(prev, `\`), " \t")
				}
			}
		default:
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// isLabelLine reports whether line i belongs to a LABEL instruction.
func isLabelLine(lines []string, i int) bool {
	start := i
	for start > 0 && strings.HasSuffix(strings.TrimRight(lines[start-1], " \t"), `\`) {
		start--
	}
	fields := strings.Fields(lines[start])
	return len(fields) > 0 && strings.EqualFold(fields[0], "LABEL")
}

// instructions joins continuation lines and drops comments.
func instructions(dockerfile string) []string {
	var out []string
	var cur strings.Builder
	for _, line := range strings.Split(dockerfile, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			continue
		}
		if strings.HasSuffix(trimmed, `\`) {
			cur.WriteString(strings.TrimSuffix(trimmed, `\`))
			cur.WriteByte(' ')
			continue
		}
		cur.WriteString(trimmed)
		if s := strings.TrimSpace(cur.String()); s != "" {
			out = append(out, s)
		}
		cur.Reset()
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// splitLabelArgs splits on whitespace outside double quotes.
func splitLabelArgs(s string) []string {
	var out []string
	var cur strings.Builder
	quoted := false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			cur.WriteRune(r)
		case (r == ' ' || r == '\t') && !quoted:
			if cur.Len() > 0 {
				out = append(out, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

func escapeReplacement(s string) string {
	return strings.ReplaceAll(s, "$", "$$")
}
