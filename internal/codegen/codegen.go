// Package codegen generates typed Go wrappers for registered prompts.
//
// For a prompt "support/triage" with request format {ticket: string} and response
// format {priority: integer}, the output declares SupportTriageInput,
// SupportTriageOutput and
//
//	func SupportTriage(ctx context.Context, e *promptkit.Engine, in SupportTriageInput, opts promptkit.CallOptions) (*SupportTriageOutput, *promptkit.Result, error)
package codegen

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
	"unicode"

	"github.com/dave/jennifer/jen"

	"github.com/skosovsky/promptkit"
)

const promptkitPath = "github.com/skosovsky/promptkit"

// ErrNameCollision is returned when two prompts map to the same Go identifier.
var ErrNameCollision = errors.New("codegen: identifier collision")

// Generate returns gofmt-ed source for package pkg with one wrapper per template,
// ordered by prompt name.
func Generate(pkg string, tpls []promptkit.PromptTemplate) ([]byte, error) {
	if !isIdent(pkg) {
		return nil, fmt.Errorf("codegen: invalid package name %q", pkg)
	}
	sorted := slices.Clone(tpls)
	slices.SortFunc(sorted, func(a, b promptkit.PromptTemplate) int { return strings.Compare(a.Name, b.Name) })

	f := jen.NewFile(pkg)
	f.HeaderComment("Code generated by promptctl gen. DO NOT EDIT.")
	seen := make(map[string]string, len(sorted))
	for _, t := range sorted {
		id := Identifier(t.Name)
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: %q and %q both map to %s", ErrNameCollision, prev, t.Name, id)
		}
		seen[id] = t.Name
		if err := genPrompt(f, id, t); err != nil {
			return nil, fmt.Errorf("codegen: prompt %q: %w", t.Name, err)
		}
	}
	var buf bytes.Buffer
	if err := f.Render(&buf); err != nil {
		return nil, fmt.Errorf("codegen: render: %w", err)
	}
	return buf.Bytes(), nil
}

func genPrompt(f *jen.File, id string, t promptkit.PromptTemplate) error {
	nameConst := id + "Name"
	input := id + "Input"
	output := id + "Output"
	inFields, err := fields(t.RequestFormat, "prompt")
	if err != nil {
		return err
	}
	outFields, err := fields(t.ResponseFormat, "json")
	if err != nil {
		return err
	}

	f.Commentf("%s is the registry name of prompt %q.", nameConst, t.Name)
	f.Const().Id(nameConst).Op("=").Lit(t.Name)

	structured := t.Structured()
	if structured {
		f.Commentf("%s is the validated reply of prompt %q.", output, t.Name)
		f.Type().Id(output).Struct(outFields...)
	}

	params := []jen.Code{
		jen.Id("ctx").Qual("context", "Context"),
		jen.Id("e").Op("*").Qual(promptkitPath, "Engine"),
	}
	var exec *jen.Statement
	if len(inFields) > 0 {
		f.Commentf("%s holds the variables of prompt %q.", input, t.Name)
		if desc := strings.Join(strings.Fields(t.Description), " "); desc != "" {
			f.Comment(desc)
		}
		f.Type().Id(input).Struct(inFields...)
		params = append(params, jen.Id("in").Id(input))
		exec = jen.List(jen.Id("res"), jen.Err()).Op(":=").Id("e").Dot("ExecuteStruct").Call(
			jen.Id("ctx"), jen.Id(nameConst), jen.Id("in"), jen.Id("opts"),
		)
	} else {
		exec = jen.List(jen.Id("res"), jen.Err()).Op(":=").Id("e").Dot("Execute").Call(
			jen.Id("ctx"), jen.Id(nameConst), jen.Nil(), jen.Id("opts"),
		)
	}
	params = append(params, jen.Id("opts").Qual(promptkitPath, "CallOptions"))

	if !structured {
		f.Commentf("%s executes prompt %q and returns the reply text.", id, t.Name)
		f.Func().Id(id).Params(params...).Params(jen.String(), jen.Op("*").Qual(promptkitPath, "Result"), jen.Error()).Block(
			exec,
			jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Lit(""), jen.Nil(), jen.Err())),
			jen.Return(jen.Id("res").Dot("Text"), jen.Id("res"), jen.Nil()),
		)
		return nil
	}
	f.Commentf("%s executes prompt %q. Output is nil when the model asked for a tool call.", id, t.Name)
	f.Func().Id(id).Params(params...).Params(jen.Op("*").Id(output), jen.Op("*").Qual(promptkitPath, "Result"), jen.Error()).Block(
		exec,
		jen.If(jen.Err().Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Nil(), jen.Err())),
		jen.If(jen.Id("res").Dot("ToolCall").Op("!=").Nil()).Block(jen.Return(jen.Nil(), jen.Id("res"), jen.Nil())),
		jen.Var().Id("out").Id(output),
		jen.If(
			jen.Err().Op(":=").Id("res").Dot("Decode").Call(jen.Op("&").Id("out")),
			jen.Err().Op("!=").Nil(),
		).Block(jen.Return(jen.Nil(), jen.Id("res"), jen.Err())),
		jen.Return(jen.Op("&").Id("out"), jen.Id("res"), jen.Nil()),
	)
	return nil
}

// fields emits one struct field per schema entry, sorted by key, tagged with tagKey.
func fields(s promptkit.Schema, tagKey string) ([]jen.Code, error) {
	out := make([]jen.Code, 0, len(s))
	seen := make(map[string]string, len(s))
	for _, key := range slices.Sorted(maps.Keys(s)) {
		id := Identifier(key)
		if prev, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: fields %q and %q both map to %s", ErrNameCollision, prev, key, id)
		}
		seen[id] = key
		out = append(out, jen.Id(id).Add(goType(s[key])).Tag(map[string]string{tagKey: key}))
	}
	return out, nil
}

func goType(k promptkit.Kind) *jen.Statement {
	switch k {
	case promptkit.KindString:
		return jen.String()
	case promptkit.KindNumber:
		return jen.Float64()
	case promptkit.KindInteger:
		return jen.Int64()
	case promptkit.KindBoolean:
		return jen.Bool()
	case promptkit.KindObject:
		return jen.Map(jen.String()).Id("any")
	case promptkit.KindArray:
		return jen.Index().Id("any")
	default:
		return jen.Id("any")
	}
}

// Identifier converts a prompt or field name to an exported Go identifier:
// "support/triage-v2" becomes "SupportTriageV2".
func Identifier(name string) string {
	var b strings.Builder
	upper := true
	for _, r := range name {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			upper = true
			continue
		}
		if upper {
			r = unicode.ToUpper(r)
			upper = false
		}
		b.WriteRune(r)
	}
	id := b.String()
	if id == "" || unicode.IsDigit(rune(id[0])) {
		id = "P" + id
	}
	return id
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if !unicode.IsLetter(r) && r != '_' && (i == 0 || !unicode.IsDigit(r)) {
			return false
		}
	}
	return true
}
