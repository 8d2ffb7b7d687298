package llm

import (
	"reflect"
	"testing"
)

func TestBuildMessagesOrdering(t *testing.T) {
	history := []Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
	}
	got := BuildMessages("q2", "sys", "ass", history)
	want := []Message{
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleSystem, Content: "sys"},
		{Role: RoleAssistant, Content: "ass"},
		{Role: RoleUser, Content: "q2"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestBuildMessagesOmitsEmptySentences(t *testing.T) {
	got := BuildMessages("hello", "", "", nil)
	want := []Message{{Role: RoleUser, Content: "hello"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestConvertForGeminiLastSystemWins(t *testing.T) {
	messages := []Message{
		{Role: RoleSystem, Content: "old"},
		{Role: RoleUser, Content: "q1"},
		{Role: RoleAssistant, Content: "a1"},
		{Role: RoleSystem, Content: "new"},
		{Role: RoleUser, Content: "q2"},
	}
	system, contents := convertForGemini(messages)
	if system != "new" {
		t.Fatalf("system = %q, want %q", system, "new")
	}
	want := []Message{
		{Role: "user", Content: "q1"},
		{Role: "model", Content: "a1"},
		{Role: "user", Content: "q2"},
	}
	if !reflect.DeepEqual(contents, want) {
		t.Fatalf("contents = %+v, want %+v", contents, want)
	}
}

func TestConvertForGeminiNoSystem(t *testing.T) {
	system, contents := convertForGemini([]Message{{Role: RoleUser, Content: "q"}})
	if system != "" {
		t.Fatalf("system = %q, want empty", system)
	}
	if len(contents) != 1 || contents[0].Role != "user" {
		t.Fatalf("contents = %+v", contents)
	}
}
