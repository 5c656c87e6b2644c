package markup

import (
	"strings"
	"testing"

	"github.com/reqlens/reqlens/internal/log"
)

func newTestExtractor() *Extractor {
	return NewExtractor(DefaultPolicy{}, log.NewNop())
}

func TestExtractOrderingAndStates(t *testing.T) {
	raw := `<h1>Описание</h1>
<p>Approved text.</p>
<p><span style="color: rgb(255,0,0);">Draft text.</span></p>
<p>More approved.</p>`

	frags, err := newTestExtractor().Extract(raw, ModeAll)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	want := []struct {
		text  string
		state ApprovalState
	}{
		{"# Описание", StateApproved},
		{"Approved text.", StateApproved},
		{"Draft text.", StateUnapproved},
		{"More approved.", StateApproved},
	}
	if len(frags) != len(want) {
		t.Fatalf("got %d fragments, want %d: %#v", len(frags), len(want), frags)
	}
	for i, w := range want {
		if frags[i].Text != w.text {
			t.Errorf("fragment %d text = %q, want %q", i, frags[i].Text, w.text)
		}
		if frags[i].State != w.state {
			t.Errorf("fragment %d state = %v, want %v", i, frags[i].State, w.state)
		}
		if frags[i].Position != i {
			t.Errorf("fragment %d position = %d", i, frags[i].Position)
		}
	}
}

func TestExtractApprovedSubset(t *testing.T) {
	raw := `<h2>Attributes</h2>
<p>Stable paragraph.</p>
<p><span style="color: #ff0000;">Pending change.</span></p>
<ul>
<li>first item</li>
<li style="color: rgb(0,128,0);">proposed item</li>
<li>third item</li>
<li>mixed <span style="color: red;">tail</span></li>
</ul>
<h3>Status <span style="color: rgb(255,0,0);">WIP</span></h3>
<table><tbody>
<tr><td>code</td><td><span style="color: #ff0000;">draft</span></td></tr>
<tr><td>name</td><td>string</td></tr>
</tbody></table>`

	e := newTestExtractor()
	all, err := e.Extract(raw, ModeAll)
	if err != nil {
		t.Fatalf("Extract(all) error = %v", err)
	}
	approved, err := e.Extract(raw, ModeApproved)
	if err != nil {
		t.Fatalf("Extract(approved) error = %v", err)
	}

	allTexts := make(map[string]bool, len(all))
	for _, f := range all {
		allTexts[f.Text] = true
	}
	for _, f := range approved {
		if f.State != StateApproved {
			t.Errorf("approved mode returned %v fragment %q", f.State, f.Text)
		}
		if !allTexts[f.Text] {
			t.Errorf("approved fragment %q not present in full extraction", f.Text)
		}
	}
	if len(approved) >= len(all) {
		t.Errorf("approved count %d, full count %d; expected strict subset", len(approved), len(all))
	}
}

func TestExtractMixedStateCompositesAreUnapproved(t *testing.T) {
	raw := `<h1>Black <span style="color: rgb(255,0,0);">Red</span></h1>
<ul>
<li>ok <span style="color: rgb(255,0,0);">draft</span></li>
</ul>
<table><tbody>
<tr><td>id</td><td><span style="color: #ff0000;">tbd</span></td></tr>
</tbody></table>`

	e := newTestExtractor()
	all, err := e.Extract(raw, ModeAll)
	if err != nil {
		t.Fatalf("Extract(all) error = %v", err)
	}
	want := []struct {
		text  string
		state ApprovalState
	}{
		{"# Black Red", StateUnapproved},
		{"- ok draft", StateUnapproved},
		{"| id | tbd |", StateUnapproved},
	}
	if len(all) != len(want) {
		t.Fatalf("got %d fragments, want %d: %#v", len(all), len(want), all)
	}
	for i, w := range want {
		if all[i].Text != w.text {
			t.Errorf("fragment %d text = %q, want %q", i, all[i].Text, w.text)
		}
		if all[i].State != w.state {
			t.Errorf("fragment %d state = %v, want %v", i, all[i].State, w.state)
		}
	}

	approved, err := e.Extract(raw, ModeApproved)
	if err != nil {
		t.Fatalf("Extract(approved) error = %v", err)
	}
	if len(approved) != 0 {
		t.Errorf("approved mode returned mixed-state composites: %#v", approved)
	}
}

func TestExtractDigsBlackOutOfColoredContainer(t *testing.T) {
	raw := `<p style="color: rgb(255,0,0);">draft part <span style="color: rgb(23,43,77);">agreed part</span></p>`

	frags, err := newTestExtractor().Extract(raw, ModeApproved)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(frags) != 1 {
		t.Fatalf("got %d fragments, want 1: %#v", len(frags), frags)
	}
	if frags[0].Text != "agreed part" {
		t.Errorf("fragment text = %q, want %q", frags[0].Text, "agreed part")
	}
}

func TestExtractTableRows(t *testing.T) {
	raw := `<table>
<thead><tr><th>Attribute</th><th>Type</th></tr></thead>
<tbody>
<tr><td>id</td><td>uuid</td></tr>
<tr><td>name</td><td>string</td></tr>
</tbody>
</table>`

	frags, err := newTestExtractor().Extract(raw, ModeAll)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(frags) != 3 {
		t.Fatalf("got %d fragments, want 3: %#v", len(frags), frags)
	}
	wantHeader := "| Attribute | Type |\n| --- | --- |"
	if frags[0].Text != wantHeader {
		t.Errorf("header fragment = %q, want %q", frags[0].Text, wantHeader)
	}
	if frags[1].Text != "| id | uuid |" {
		t.Errorf("row fragment = %q", frags[1].Text)
	}
	if frags[2].Text != "| name | string |" {
		t.Errorf("row fragment = %q", frags[2].Text)
	}
}

func TestExtractNestedListsKeepNumberingAcrossModes(t *testing.T) {
	raw := `<ol>
<li>keep one</li>
<li style="color: red;">drop two</li>
<li>keep three<ul><li>nested</li></ul></li>
</ol>`

	e := newTestExtractor()
	approved, err := e.Extract(raw, ModeApproved)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	var texts []string
	for _, f := range approved {
		texts = append(texts, f.Text)
	}
	got := strings.Join(texts, "\n")
	want := "1. keep one\n3. keep three\n    - nested"
	if got != want {
		t.Errorf("approved list output = %q, want %q", got, want)
	}
}

func TestExtractInlineMarkupKeepsWordsIntact(t *testing.T) {
	raw := `<p>The <strong>AP</strong>I uses <em>snake</em>_case names.</p>`

	text, err := newTestExtractor().Text(raw, ModeAll)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if !strings.Contains(text, "API") {
		t.Errorf("bold split a word: %q", text)
	}
	if !strings.Contains(text, "snake_case") {
		t.Errorf("emphasis split a word: %q", text)
	}
	if !strings.Contains(text, "The API uses") {
		t.Errorf("word spacing lost: %q", text)
	}
}

func TestExtractExcludesStrikethroughAndJira(t *testing.T) {
	raw := `<p>visible <s>struck</s> text</p>
<p><span style="text-decoration: line-through;">also struck</span></p>
<p><ac:structured-macro ac:name="jira"><ac:parameter ac:name="key">REQ-42</ac:parameter></ac:structured-macro> issue ref</p>`

	text, err := newTestExtractor().Text(raw, ModeAll)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	for _, gone := range []string{"struck", "also struck", "REQ-42"} {
		if strings.Contains(text, gone) {
			t.Errorf("excluded content %q survived: %q", gone, text)
		}
	}
	if !strings.Contains(text, "visible text") {
		t.Errorf("surrounding text lost: %q", text)
	}
	if !strings.Contains(text, "issue ref") {
		t.Errorf("text after jira macro lost: %q", text)
	}
}

func TestExtractLinksAndTime(t *testing.T) {
	raw := `<p>See <ac:link><ri:page ri:content-title="API Contract"/></ac:link> and <a href="https://x">external doc</a> updated <time datetime="2024-03-01"/>.</p>`

	text, err := newTestExtractor().Text(raw, ModeAll)
	if err != nil {
		t.Fatalf("Text() error = %v", err)
	}
	if !strings.Contains(text, "[API Contract]") {
		t.Errorf("page link title missing: %q", text)
	}
	if !strings.Contains(text, "[external doc]") {
		t.Errorf("anchor text missing: %q", text)
	}
	if !strings.Contains(text, "2024-03-01") {
		t.Errorf("time datetime missing: %q", text)
	}
}

func TestExtractEmptyInput(t *testing.T) {
	frags, err := newTestExtractor().Extract("  \n ", ModeAll)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	if len(frags) != 0 {
		t.Errorf("expected no fragments, got %#v", frags)
	}
}
