package confignode

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
)

// Parse reads a document from its text form and returns the document
// root. Accepted line shapes: "TAG" followed by "{" on the next line,
// "TAG {" on one line, "name = value", "}", blank lines, and "//"
// comments. Unbalanced braces and values outside any assignment are
// reported with their line number.
func Parse(data []byte) (*Node, error) {
	root := NewDocument()
	stack := []*Node{root}
	var pendingTag string
	pendingLine := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}

		switch {
		case line == "{":
			if pendingTag == "" {
				return nil, fmt.Errorf("line %d: '{' without a node tag", lineNo)
			}
			child := stack[len(stack)-1].NewChild(pendingTag)
			stack = append(stack, child)
			pendingTag = ""

		case line == "}":
			if pendingTag != "" {
				return nil, fmt.Errorf("line %d: node %q has no body", pendingLine, pendingTag)
			}
			if len(stack) == 1 {
				return nil, fmt.Errorf("line %d: unmatched '}'", lineNo)
			}
			stack = stack[:len(stack)-1]

		case strings.Contains(line, "="):
			if pendingTag != "" {
				return nil, fmt.Errorf("line %d: node %q has no body", pendingLine, pendingTag)
			}
			name, value, _ := strings.Cut(line, "=")
			name = strings.TrimSpace(name)
			if name == "" {
				return nil, fmt.Errorf("line %d: assignment without a name", lineNo)
			}
			stack[len(stack)-1].AddValue(name, strings.TrimSpace(value))

		case strings.HasSuffix(line, "{"):
			if pendingTag != "" {
				return nil, fmt.Errorf("line %d: node %q has no body", pendingLine, pendingTag)
			}
			tag := strings.TrimSpace(strings.TrimSuffix(line, "{"))
			if tag == "" {
				return nil, fmt.Errorf("line %d: '{' without a node tag", lineNo)
			}
			child := stack[len(stack)-1].NewChild(tag)
			stack = append(stack, child)

		default:
			if pendingTag != "" {
				return nil, fmt.Errorf("line %d: node %q has no body", pendingLine, pendingTag)
			}
			pendingTag = line
			pendingLine = lineNo
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if pendingTag != "" {
		return nil, fmt.Errorf("line %d: node %q has no body", pendingLine, pendingTag)
	}
	if len(stack) != 1 {
		return nil, fmt.Errorf("unclosed node %q", stack[len(stack)-1].Tag)
	}
	return root, nil
}
