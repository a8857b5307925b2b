package action

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dop251/goja"
)

// DEFAULT_CLASSIFIER_SCRIPT routes by keywords. A rule script gets the ticket
// as $ and sets $.verticalId and $.skillId.
const DEFAULT_CLASSIFIER_SCRIPT = `
var text = ($.text || "").toLowerCase();
$.verticalId = 1;
$.skillId = 1;
if (/refund|payment|invoice|charge/.test(text)) {
	$.verticalId = 2;
	$.skillId = 20;
} else if (/error|bug|crash|broken/.test(text)) {
	$.verticalId = 3;
	$.skillId = 30;
}
`

type Classification struct {
	VerticalId int64 `json:"verticalId"`
	SkillId    int64 `json:"skillId"`
}

type Classifier struct {
	program *goja.Program
}

func NewClassifier(script string) (*Classifier, error) {
	if len(script) == 0 {
		return nil, fmt.Errorf("classifier script can not be empty")
	}
	program, err := goja.Compile("classifier", script, false)
	if err != nil {
		return nil, fmt.Errorf("error compiling classifier script %w", err)
	}
	return &Classifier{program: program}, nil
}

func NewDefaultClassifier() *Classifier {
	c, err := NewClassifier(DEFAULT_CLASSIFIER_SCRIPT)
	if err != nil {
		panic(err)
	}
	return c
}

// LoadClassifier reads the rule script at path, or the built-in rules when
// path is empty.
func LoadClassifier(path string) (*Classifier, error) {
	if path == "" {
		return NewDefaultClassifier(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return NewClassifier(string(data))
}

// Classify runs the rules on a fresh runtime, goja runtimes are not safe for
// concurrent use.
func (c *Classifier) Classify(input map[string]any) (Classification, error) {
	vm := goja.New()
	if err := vm.Set("$", input); err != nil {
		return Classification{}, err
	}
	if _, err := vm.RunProgram(c.program); err != nil {
		return Classification{}, fmt.Errorf("error executing javascript %w", err)
	}
	val := vm.Get("$")
	if val == nil {
		return Classification{}, fmt.Errorf("classifier script removed $")
	}
	res, err := json.Marshal(val.Export())
	if err != nil {
		return Classification{}, err
	}
	var out Classification
	if err := json.Unmarshal(res, &out); err != nil {
		return Classification{}, fmt.Errorf("classifier produced invalid result: %w", err)
	}
	return out, nil
}
