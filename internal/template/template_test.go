package template

import (
	"reflect"
	"sync"
	"testing"

	"github.com/reqlens/reqlens/internal/log"
	"github.com/reqlens/reqlens/internal/structure"
)

const testRules = `{
  "data_model": {
    "title": ["модель данных", "data model"],
    "headings": [["атрибуты", "attributes"], ["связи", "relations"]],
    "content": null,
    "required_sections": ["Описание сущности"],
    "required_columns": {
      "attributes": ["Attribute", "Type", "Mandatory", "Description"]
    }
  },
  "integration": {
    "title": null,
    "headings": [["интеграция", "integration"]],
    "content": [["api", "endpoint"]],
    "required_sections": [],
    "required_columns": {}
  }
}`

func mustRules(t *testing.T) *Rules {
	t.Helper()
	rules, err := ParseRules([]byte(testRules))
	if err != nil {
		t.Fatalf("ParseRules() error = %v", err)
	}
	return rules
}

func TestParseRulesKeepsFileOrder(t *testing.T) {
	rules := mustRules(t)
	want := []string{"data_model", "integration"}
	if !reflect.DeepEqual(rules.Types(), want) {
		t.Errorf("Types() = %v, want %v", rules.Types(), want)
	}
}

func TestDetectType(t *testing.T) {
	rules := mustRules(t)

	tests := []struct {
		name    string
		title   string
		content string
		want    string
	}{
		{
			name:    "data model by title and headings",
			title:   "Модель данных: Заказ",
			content: "# Атрибуты\n| Attribute |\n# Связи\n",
			want:    "data_model",
		},
		{
			name:    "title matches but headings missing",
			title:   "Модель данных: Заказ",
			content: "# Описание\nпросто текст",
			want:    "",
		},
		{
			name:    "integration by heading and content",
			title:   "Сервис платежей",
			content: "# Интеграция\nвнешний api клиента",
			want:    "integration",
		},
		{
			name:    "content synonym absent",
			title:   "Сервис платежей",
			content: "# Интеграция\nбез ключевых слов",
			want:    "",
		},
		{
			name:    "heading synonym in body text does not count",
			title:   "Сервис",
			content: "текст про интеграцию без заголовка api",
			want:    "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := rules.DetectType(tt.title, tt.content); got != tt.want {
				t.Errorf("DetectType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func docWith(headings []string, tables ...structure.TableSchema) structure.Document {
	doc := structure.Document{RequiredFields: map[string]struct{}{}}
	for _, h := range headings {
		doc.Sections = append(doc.Sections, structure.Section{Heading: h, Level: 2, HasContent: true})
	}
	doc.Tables = tables
	return doc
}

func TestBuildUnionDedup(t *testing.T) {
	b := NewBuilder(mustRules(t), log.NewNop())

	a := docWith([]string{"Атрибуты", "Связи"},
		structure.TableSchema{Columns: []string{"Attribute", "Type"}})
	c := docWith([]string{"связи", "Ограничения"},
		structure.TableSchema{Columns: []string{"Type", "Attribute"}},
		structure.TableSchema{Columns: []string{"From", "To"}})

	schema := b.Build("integration", a, c)

	wantSections := []string{"Атрибуты", "Связи", "Ограничения"}
	if !reflect.DeepEqual(schema.RequiredSections, wantSections) {
		t.Errorf("RequiredSections = %v, want %v", schema.RequiredSections, wantSections)
	}
	// Same column set in different order is one table.
	if len(schema.Tables) != 2 {
		t.Errorf("Tables = %#v, want 2 distinct tables", schema.Tables)
	}
	if schema.Degraded {
		t.Error("schema unexpectedly degraded")
	}
}

func TestBuildUnionCommutative(t *testing.T) {
	b := NewBuilder(nil, log.NewNop())

	a := docWith([]string{"Alpha", "Beta"})
	c := docWith([]string{"Beta", "Gamma"})

	ab := b.Build("t", a, c)
	ba := b.Build("t", c, a)

	set := func(s Schema) map[string]bool {
		out := map[string]bool{}
		for _, h := range s.RequiredSections {
			out[structure.Normalize(h)] = true
		}
		return out
	}
	if !reflect.DeepEqual(set(ab), set(ba)) {
		t.Errorf("section sets differ: %v vs %v", set(ab), set(ba))
	}
}

func TestBuildAppliesStaticRules(t *testing.T) {
	b := NewBuilder(mustRules(t), log.NewNop())

	doc := docWith([]string{"Атрибуты"},
		structure.TableSchema{Columns: []string{"Attribute", "Type", "Comment"}})
	schema := b.Build("data_model", doc)

	found := false
	for _, s := range schema.RequiredSections {
		if structure.Normalize(s) == "описание сущности" {
			found = true
		}
	}
	if !found {
		t.Errorf("rule-mandated section missing: %v", schema.RequiredSections)
	}

	// Rule columns attach to the overlapping reference table instead
	// of synthesizing a second one, and absentees are added.
	if len(schema.Tables) != 1 {
		t.Fatalf("Tables = %#v, want the single reference table", schema.Tables)
	}
	req := schema.Tables[0].Required
	for _, col := range []string{"Attribute", "Type", "Mandatory", "Description"} {
		if _, ok := req[col]; !ok {
			t.Errorf("column %q not marked required: %v", col, req)
		}
	}
}

func TestBuildSynthesizesRuleTable(t *testing.T) {
	b := NewBuilder(mustRules(t), log.NewNop())

	schema := b.Build("data_model", docWith([]string{"Описание"}))
	if len(schema.Tables) != 1 {
		t.Fatalf("Tables = %#v, want synthesized rule table", schema.Tables)
	}
	if len(schema.Tables[0].Required) != 4 {
		t.Errorf("Required = %v, want all four rule columns", schema.Tables[0].Required)
	}
}

func TestBuildDegraded(t *testing.T) {
	b := NewBuilder(nil, log.NewNop())

	schema := b.Build("unknown", structure.Document{})
	if !schema.Degraded {
		t.Error("zero-structure build should be degraded")
	}
}

func TestRegistrySwap(t *testing.T) {
	r := NewRegistry()

	r.Load("data_model", Schema{RequirementType: "data_model", RequiredSections: []string{"A"}})
	first, ok := r.Get("data_model")
	if !ok || len(first.RequiredSections) != 1 {
		t.Fatalf("Get() = %#v, %v", first, ok)
	}

	r.Load("data_model", Schema{RequirementType: "data_model", RequiredSections: []string{"A", "B"}})
	second, _ := r.Get("data_model")
	if len(second.RequiredSections) != 2 {
		t.Errorf("swap not visible: %#v", second)
	}

	if _, ok := r.Get("missing"); ok {
		t.Error("Get() on missing type reported ok")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Load("t", Schema{RequirementType: "t"})
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				r.Get("t")
			}
		}()
	}
	wg.Wait()
}
