package markup

import (
	"strings"
	"testing"

	"github.com/reqlens/reqlens/internal/log"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(log.NewNop())
}

func TestNormalizeRemovesHistoryExpandMacro(t *testing.T) {
	raw := `<p>Keep me</p>
<ac:structured-macro ac:name="expand">
  <ac:parameter ac:name="title">История изменений</ac:parameter>
  <ac:rich-text-body><table><tr><td>old row</td></tr></table></ac:rich-text-body>
</ac:structured-macro>
<p>Keep me too</p>`

	got, err := newTestNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if strings.Contains(got, "old row") {
		t.Errorf("history macro content survived: %q", got)
	}
	if !strings.Contains(got, "Keep me") || !strings.Contains(got, "Keep me too") {
		t.Errorf("surrounding content lost: %q", got)
	}
}

func TestNormalizeRemovesHistoryHeadingWithTable(t *testing.T) {
	raw := `<h2>История изменений</h2>
<table><tr><td>Версия</td><td>Дата</td></tr><tr><td>1.0</td><td>2024-01-01</td></tr></table>
<h2>Описание</h2>
<p>Real content</p>`

	got, err := newTestNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if strings.Contains(got, "История изменений") {
		t.Errorf("history heading survived: %q", got)
	}
	if strings.Contains(got, "2024-01-01") {
		t.Errorf("history table survived: %q", got)
	}
	if !strings.Contains(got, "Real content") {
		t.Errorf("content after history section lost: %q", got)
	}
}

func TestNormalizeRemovesHistoryParagraphWithTable(t *testing.T) {
	raw := `<p><strong>Change history</strong></p>
<table><tr><td>v1</td></tr></table>
<p>Normal paragraph</p>`

	got, err := newTestNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if strings.Contains(got, "Change history") || strings.Contains(got, "v1") {
		t.Errorf("history paragraph or table survived: %q", got)
	}
	if !strings.Contains(got, "Normal paragraph") {
		t.Errorf("normal paragraph lost: %q", got)
	}
}

func TestNormalizeRemovesTableByHeaderFingerprint(t *testing.T) {
	// No heading or title, but the column headers identify the table.
	raw := `<table>
<thead><tr><th>Дата</th><th>Автор</th><th>Описание изменений</th><th>Jira</th></tr></thead>
<tbody><tr><td>2024-02-02</td><td>ivanov</td><td>fix</td><td>REQ-1</td></tr></tbody>
</table>
<table><tr><th>Attribute</th><th>Type</th></tr><tr><td>id</td><td>uuid</td></tr></table>`

	got, err := newTestNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if strings.Contains(got, "ivanov") {
		t.Errorf("fingerprinted history table survived: %q", got)
	}
	if !strings.Contains(got, "Attribute") {
		t.Errorf("unrelated table removed: %q", got)
	}
}

func TestNormalizeKeepsFewHeaderMatches(t *testing.T) {
	// Only two fingerprint headers match; the table must stay.
	raw := `<table><tr><th>Дата</th><th>Автор</th><th>Сумма</th><th>Счёт</th></tr><tr><td>x</td><td>y</td><td>z</td><td>w</td></tr></table>`

	got, err := newTestNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !strings.Contains(got, "Сумма") {
		t.Errorf("non-history table removed: %q", got)
	}
}

func TestNormalizeUnwrapsExpandMacro(t *testing.T) {
	raw := `<ac:structured-macro ac:name="expand">
  <ac:parameter ac:name="title">Details</ac:parameter>
  <ac:rich-text-body><p>hidden content</p></ac:rich-text-body>
</ac:structured-macro>`

	got, err := newTestNormalizer().Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if !strings.Contains(got, "hidden content") {
		t.Errorf("expand body lost: %q", got)
	}
	if strings.Contains(got, "ac:structured-macro") {
		t.Errorf("expand macro shell survived: %q", got)
	}
}

func TestNormalizeWithoutHistoryIsStable(t *testing.T) {
	raw := `<h1>Описание</h1><p>Content stays as is.</p><table><tr><th>A</th></tr><tr><td>1</td></tr></table>`

	n := newTestNormalizer()
	once, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	twice, err := n.Normalize(once)
	if err != nil {
		t.Fatalf("Normalize() second pass error = %v", err)
	}
	if once != twice {
		t.Errorf("normalization not idempotent:\nfirst:  %q\nsecond: %q", once, twice)
	}
	if !strings.Contains(once, "Content stays as is.") {
		t.Errorf("document without history sections was altered: %q", once)
	}
}

func TestNormalizeWithHistoryIsIdempotent(t *testing.T) {
	raw := `<h2>История изменений</h2>
<table><tr><td>Версия</td><td>Дата</td></tr><tr><td>1.0</td><td>2024-01-01</td></tr></table>
<ac:structured-macro ac:name="expand">
  <ac:parameter ac:name="title">История изменений</ac:parameter>
  <ac:rich-text-body><table><tr><td>old row</td></tr></table></ac:rich-text-body>
</ac:structured-macro>
<h2>Описание</h2>
<p>Real content</p>`

	n := newTestNormalizer()
	once, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	twice, err := n.Normalize(once)
	if err != nil {
		t.Fatalf("Normalize() second pass error = %v", err)
	}
	if once != twice {
		t.Errorf("normalization not idempotent:\nfirst:  %q\nsecond: %q", once, twice)
	}
	if strings.Contains(once, "История изменений") || strings.Contains(once, "old row") {
		t.Errorf("history content survived first pass: %q", once)
	}
	if !strings.Contains(once, "Real content") {
		t.Errorf("content after history section lost: %q", once)
	}
}

func TestNormalizeEmptyInput(t *testing.T) {
	got, err := newTestNormalizer().Normalize("")
	if err != nil {
		t.Fatalf("Normalize() error = %v", err)
	}
	if strings.TrimSpace(got) != "" {
		t.Errorf("empty input produced output: %q", got)
	}
}
