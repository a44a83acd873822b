package template

import (
	"reflect"
	"testing"
)

func TestRender(t *testing.T) {
	cases := []struct {
		name    string
		content string
		vars    map[string]interface{}
		want    string
	}{
		{"simple", "Hello {{name}}", map[string]interface{}{"name": "Ana"}, "Hello Ana"},
		{"spaces", "Case {{ caseNumber }} updated", map[string]interface{}{"caseNumber": "I-130"}, "Case I-130 updated"},
		{"numbers", "{{count}} documents", map[string]interface{}{"count": 3}, "3 documents"},
		{"missing", "Dear {{name}}, see {{link}}", map[string]interface{}{"name": "Ana"}, "Dear Ana, see "},
		{"nil value", "[{{x}}]", map[string]interface{}{"x": nil}, "[]"},
		{"repeated", "{{a}}-{{a}}", map[string]interface{}{"a": true}, "true-true"},
		{"not a placeholder", "{{ }} and {x}", nil, "{{ }} and {x}"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Render(tc.content, tc.vars); got != tc.want {
				t.Errorf("Render() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestVariables(t *testing.T) {
	got := Variables("{{first}} {{ second }} {{first}} {{third_3}}")
	want := []string{"first", "second", "third_3"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Variables() = %v, want %v", got, want)
	}
}
