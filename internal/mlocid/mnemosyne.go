package mlocid

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/kuitang/mlocid-e2e/internal/errs"
)

// CardInput is the user-editable part of a card.
type CardInput struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Validate trims both sides and rejects empty ones.
func (in *CardInput) Validate() error {
	in.Question = strings.TrimSpace(in.Question)
	in.Answer = strings.TrimSpace(in.Answer)
	if in.Question == "" || in.Answer == "" {
		return errs.New(errs.InvalidArgument, "question and answer are required")
	}
	return nil
}

// ParseMnemosyne reads Mnemosyne's tab-separated export: one card per line
// as question<TAB>answer, with <br> standing for a line break inside a side.
// Blank lines are skipped. Any malformed line rejects the whole import.
func ParseMnemosyne(text string) ([]CardInput, error) {
	var cards []CardInput
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), maxImportBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		question, answer, ok := strings.Cut(line, "\t")
		if !ok {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("line %d: expected question<TAB>answer", lineNo))
		}
		in := CardInput{
			Question: unescapeMnemosyne(question),
			Answer:   unescapeMnemosyne(answer),
		}
		if err := in.Validate(); err != nil {
			return nil, errs.New(errs.InvalidArgument, fmt.Sprintf("line %d: question and answer are required", lineNo))
		}
		cards = append(cards, in)
	}
	if err := scanner.Err(); err != nil {
		return nil, errs.Wrap(errs.InvalidArgument, "import text is not readable", err)
	}
	if len(cards) == 0 {
		return nil, errs.New(errs.InvalidArgument, "no cards found in import text")
	}
	return cards, nil
}

var mnemosyneBreaks = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n")

func unescapeMnemosyne(s string) string {
	return mnemosyneBreaks.Replace(s)
}
