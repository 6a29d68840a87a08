package gen

import (
	"bytes"
	"go/format"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/cockroachdb/errors"
)

// Render generates the Go source code for a single StructInfo.
// The returned bytes are formatted by gofmt.
func Render(info *StructInfo) ([]byte, error) {
	return RenderFile([]*StructInfo{info})
}

// RenderFile generates a single Go source file declaring the field table,
// constructor and entity type of every given struct.
func RenderFile(infos []*StructInfo) ([]byte, error) {
	if len(infos) == 0 {
		return nil, errors.New("no structs to render")
	}

	structs := make([]templateData, 0, len(infos))
	var imports []ImportInfo
	seen := map[string]bool{"context": true, "orm": true}
	for _, info := range infos {
		for _, imp := range usedImports(info) {
			if !seen[imp.Name] {
				seen[imp.Name] = true
				imports = append(imports, imp)
			}
		}
		if len(info.PrimaryKeyFields()) == 0 && len(info.Relations) > 0 {
			return nil, errors.Newf("%s: associations require a primary key", info.Name)
		}
		relations := make([]relationData, 0, len(info.Relations))
		for _, r := range info.Relations {
			rd, err := buildRelation(r)
			if err != nil {
				return nil, errors.Wrapf(err, "%s", info.Name)
			}
			relations = append(relations, rd)
		}
		structs = append(structs, templateData{
			Name:          info.Name,
			TableName:     info.TableName,
			Fields:        info.Fields,
			Relations:     relations,
			FieldsVar:     unexportedName(info.Name + "Fields"),
			ConstructFunc: unexportedName("construct" + info.Name),
		})
	}

	var buf bytes.Buffer
	if err := fileTmpl.Execute(&buf, fileTemplateData{Package: infos[0].Package, Imports: imports, Structs: structs}); err != nil {
		return nil, errors.Wrap(err, "execute template")
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, errors.Wrap(err, "gofmt")
	}
	return src, nil
}

type fileTemplateData struct {
	Package string
	Imports []ImportInfo
	Structs []templateData
}

// usedImports returns the imports of info's file that its field and
// handle types refer to.
func usedImports(info *StructInfo) []ImportInfo {
	types := make([]string, 0, len(info.Fields)+len(info.Relations))
	for _, f := range info.Fields {
		types = append(types, f.GoType)
	}
	for _, r := range info.Relations {
		types = append(types, r.ElemType)
	}
	var used []ImportInfo
	for _, imp := range info.Imports {
		for _, t := range types {
			if strings.Contains(t, imp.Name+".") {
				used = append(used, imp)
				break
			}
		}
	}
	return used
}

type templateData struct {
	Name          string
	TableName     string
	Fields        []FieldInfo
	Relations     []relationData
	FieldsVar     string
	ConstructFunc string
}

type relationData struct {
	FieldName  string
	ElemType   string
	Accessor   string // ChildrenOf, LinksOf or ReferenceOf
	Descriptor string // orm.Children(...) etc.
}

func buildRelation(r RelationInfo) (relationData, error) {
	var (
		ctor     string
		args     []string
		accessor string
		handle   = "Many"
	)
	switch r.Kind {
	case RelChild:
		ctor, accessor = "Children", "ChildrenOf"
		args = []string{r.FieldName, r.Target, r.ForeignKey}
	case RelLink:
		ctor, accessor = "Links", "LinksOf"
		args = []string{r.FieldName, r.Junction, r.Target, r.ForeignKey, r.References}
	case RelReference:
		ctor, accessor, handle = "Refers", "ReferenceOf", "One"
		args = []string{r.FieldName, r.Target, r.ParentKey}
	default:
		return relationData{}, errors.Newf("%s: unknown rel kind %q", r.FieldName, r.Kind)
	}
	if r.Handle != handle {
		return relationData{}, errors.Newf("%s: %s association needs a *orm.%s[T] field", r.FieldName, r.Kind, handle)
	}

	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = strconv.Quote(a)
	}
	if r.TargetKey != "" {
		quoted = append(quoted, "orm.WithTargetKey("+strconv.Quote(r.TargetKey)+")")
	}
	if r.Lazy {
		quoted = append(quoted, "orm.Lazy()")
	}
	if r.SaveBefore {
		quoted = append(quoted, "orm.SaveBefore()")
	}
	return relationData{
		FieldName:  r.FieldName,
		ElemType:   r.ElemType,
		Accessor:   accessor,
		Descriptor: "orm." + ctor + "(" + strings.Join(quoted, ", ") + ")",
	}, nil
}

func unexportedName(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToLower(runes[0])
	return string(runes)
}

var funcMap = template.FuncMap{
	"quote": strconv.Quote,
	"base": func(path string) string {
		return path[strings.LastIndex(path, "/")+1:]
	},
}

var fileTmpl = template.Must(template.New("gen").Funcs(funcMap).Parse(fileTemplate))

const fileTemplate = `// Code generated by ormgraph; DO NOT EDIT.
package {{.Package}}

import (
	"context"
	{{- range .Imports}}
	{{- if ne .Name (base .Path)}}
	{{.Name}} {{quote .Path}}
	{{- else}}
	{{quote .Path}}
	{{- end}}
	{{- end}}

	"github.com/mickamy/ormgraph/orm"
)
{{range .Structs}}{{$s := .}}
{{- if .TableName}}
func ({{.Name}}) TableName() string { return {{quote .TableName}} }
{{end}}
var {{.FieldsVar}} = []orm.Field[{{.Name}}]{
	{{- range .Fields}}
	orm.Col({{quote .Column}}, func(m *{{$s.Name}}) *{{.GoType}} { return &m.{{.Name}} }{{if .PrimaryKey}}, orm.PrimaryKey(){{end}}{{if .Token}}, orm.Token(){{end}}),
	{{- end}}
}

// Define{{.Name}} declares the {{.Name}} entity type.
func Define{{.Name}}() (*orm.Type[{{.Name}}, *{{.Name}}], error) {
	return orm.Define[{{.Name}}, *{{.Name}}]({{quote .Name}}, {{.FieldsVar}}, {{.ConstructFunc}}
	{{- range .Relations}},
		{{.Descriptor}}
	{{- end}}{{if .Relations}},
	{{end}})
}

func {{.ConstructFunc}}(_ context.Context, m *{{.Name}}, {{if .Relations}}c{{else}}_{{end}} *orm.Containers) (*{{.Name}}, error) {
	{{- if .Relations}}
	var err error
	{{- range .Relations}}
	if m.{{.FieldName}}, err = orm.{{.Accessor}}[{{.ElemType}}](c, {{quote .FieldName}}); err != nil {
		return nil, err
	}
	{{- end}}
	{{- end}}
	return m, nil
}
{{end}}`
