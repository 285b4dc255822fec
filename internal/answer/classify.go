package answer

import (
	"regexp"
	"strings"
	"unicode"
)

const classifierTemplate = `You are a classifier. Decide whether the user question requires consulting the project's source code files to answer. Respond with exactly ONE token on a single line: either GENERAL or CODE and NOTHING ELSE. GENERAL means the question is general-knowledge, factual, or conceptual and does NOT require reading repository files. CODE means the question asks about file contents, exact implementation, debugging, code examples from this repo, or explicitly references files, paths, or repository structure.

EXAMPLES (input => expected single-token output):
What is the value of pi? => GENERAL
How many planets are in the solar system? => GENERAL
How to sort an array in Java? => GENERAL
Show me the contents of src/main/java/com/example/MyClass.java => CODE
Why does my NullPointerException occur at com/example/Foo.java:42? => CODE
What does the function computeChecksum in file util/Checksum.java do? => CODE

QUESTION:
`

// ClassifierPrompt asks the model to label question CODE or GENERAL.
func ClassifierPrompt(question string) string {
	return classifierTemplate + question + "\n\nREPLY WITH ONE TOKEN (GENERAL or CODE):\n"
}

// Questions about pi are general knowledge whatever the model says.
var generalOverride = regexp.MustCompile(`(?i)\bpi\b`)

// ParseClassification reports whether the model's reply labels question as
// needing source code. Only the first token of the reply counts.
func ParseClassification(reply, question string) bool {
	if generalOverride.MatchString(question) {
		return false
	}
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return false
	}
	first := strings.TrimFunc(fields[0], func(r rune) bool { return !unicode.IsLetter(r) })
	return strings.EqualFold(first, "CODE")
}
