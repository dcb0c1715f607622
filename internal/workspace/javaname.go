package workspace

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	javaNoise    = regexp.MustCompile(`"""[\s\S]*?"""|"(?:\\.|[^"\\\n])*"|'(?:\\.|[^'\\\n])+'|//[^\n]*|/\*[\s\S]*?\*/`)
	javaTypeDecl = regexp.MustCompile(`\b((?:(?:public|final|abstract|sealed|non-sealed|strictfp)\s+)*)(class|interface|enum|record)\s+([A-Za-z_$][\w$]*)`)
)

// JavaClassName derives the file base name javac requires for a source file:
// the top-level public type if there is one, otherwise the first top-level class.
func JavaClassName(source string) (string, error) {
	code := javaNoise.ReplaceAllString(source, " ")

	var firstClass string
	for _, m := range javaTypeDecl.FindAllStringSubmatchIndex(code, -1) {
		if braceDepth(code[:m[0]]) != 0 {
			continue
		}
		modifiers := code[m[2]:m[3]]
		kind := code[m[4]:m[5]]
		name := code[m[6]:m[7]]
		if strings.Contains(modifiers, "public") {
			return name, nil
		}
		if firstClass == "" && kind == "class" {
			firstClass = name
		}
	}
	if firstClass != "" {
		return firstClass, nil
	}
	return "", fmt.Errorf("%w: no top-level class declaration found in java source", ErrInvalidSource)
}

func braceDepth(code string) int {
	return strings.Count(code, "{") - strings.Count(code, "}")
}
