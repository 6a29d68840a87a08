package gen

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"reflect"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/mickamy/ormgraph/internal/naming"
)

// FieldInfo holds parsed metadata for one struct field.
type FieldInfo struct {
	Name       string // Go field name, e.g. "ID"
	Column     string // DB column name from `db:"id"` tag
	GoType     string // Go type as string, e.g. "int64", "string", "time.Time"
	PrimaryKey bool   // true if tag contains "primaryKey"
	Token      bool   // true if tag contains "token"
}

// RelationKind is the association kind named in a rel tag.
type RelationKind string

const (
	RelChild     RelationKind = "child"
	RelLink      RelationKind = "link"
	RelReference RelationKind = "reference"
)

// RelationInfo holds parsed metadata for one association field.
type RelationInfo struct {
	FieldName  string       // "Items"
	Kind       RelationKind // child, link or reference
	Handle     string       // "Many" or "One"
	ElemType   string       // handle type argument, e.g. "*Item"
	Target     string       // target entity type name, e.g. "Item"
	ForeignKey string       // child: column on the target; link: junction column holding the parent key
	ParentKey  string       // reference: parent column holding the target key
	Junction   string       // link only: junction entity type name
	References string       // link only: junction column holding the target key
	TargetKey  string       // optional target column matched instead of its primary key
	Lazy       bool
	SaveBefore bool
}

// ImportInfo is one import of the parsed file.
type ImportInfo struct {
	Name string // package name used in the file, e.g. "time"
	Path string // import path, e.g. "time"
}

// StructInfo holds parsed metadata for the target struct.
type StructInfo struct {
	Name      string         // Go struct name, e.g. "Order"
	Package   string         // Package name, e.g. "model"
	Fields    []FieldInfo    // Non-skipped db fields
	Relations []RelationInfo // rel-tagged association handles
	Imports   []ImportInfo   // imports of the declaring file
	TableName string         // Set by the caller (from CLI flag); empty keeps the inferred name
}

// PrimaryKeyFields returns the primary-key fields in declaration order.
func (s *StructInfo) PrimaryKeyFields() []FieldInfo {
	var pk []FieldInfo
	for _, f := range s.Fields {
		if f.PrimaryKey {
			pk = append(pk, f)
		}
	}
	return pk
}

// Parse reads the Go file at path and returns StructInfo for every struct
// that has at least one db field.
func Parse(filePath string) ([]*StructInfo, error) {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, filePath, nil, parser.ParseComments)
	if err != nil {
		return nil, errors.Wrap(err, "parse file")
	}

	pkg := file.Name.Name
	imports := make([]ImportInfo, 0, len(file.Imports))
	for _, imp := range file.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			return nil, errors.Wrap(err, "import path")
		}
		name := path[strings.LastIndex(path, "/")+1:]
		if imp.Name != nil {
			name = imp.Name.Name
		}
		imports = append(imports, ImportInfo{Name: name, Path: path})
	}
	var infos []*StructInfo
	var perr error

	ast.Inspect(file, func(n ast.Node) bool {
		if perr != nil {
			return false
		}
		ts, ok := n.(*ast.TypeSpec)
		if !ok {
			return true
		}
		st, ok := ts.Type.(*ast.StructType)
		if !ok {
			return true
		}

		info := &StructInfo{Name: ts.Name.Name, Package: pkg, Imports: imports}
		if err := parseStructFields(info, st); err != nil {
			perr = errors.Wrapf(err, "%s", ts.Name.Name)
			return false
		}
		if len(info.Fields) == 0 {
			return true
		}
		infos = append(infos, info)
		return true
	})
	if perr != nil {
		return nil, perr
	}
	return infos, nil
}

// Find returns the struct named name.
func Find(infos []*StructInfo, name string) (*StructInfo, error) {
	for _, info := range infos {
		if info.Name == name {
			return info, nil
		}
	}
	return nil, errors.Newf("struct %s not found", name)
}

func parseStructFields(info *StructInfo, st *ast.StructType) error {
	for _, field := range st.Fields.List {
		if len(field.Names) == 0 || !field.Names[0].IsExported() {
			continue // embedded or unexported
		}
		tag := reflect.StructTag("")
		if field.Tag != nil {
			tag = reflect.StructTag(strings.Trim(field.Tag.Value, "`"))
		}
		if rel, ok := tag.Lookup("rel"); ok {
			ri, err := parseRelation(info.Name, field, rel)
			if err != nil {
				return err
			}
			info.Relations = append(info.Relations, ri)
			continue
		}
		if fi, ok := parseField(field, tag); ok {
			info.Fields = append(info.Fields, fi)
		}
	}
	return nil
}

func parseField(field *ast.Field, tag reflect.StructTag) (FieldInfo, bool) {
	name := field.Names[0].Name
	goType := typeToString(field.Type)
	if strings.HasPrefix(goType, "*orm.") {
		return FieldInfo{}, false // association handle without a rel tag
	}

	// Defaults: column inferred from field name, ID field is primary key.
	fi := FieldInfo{Name: name, Column: naming.CamelToSnake(name), GoType: goType, PrimaryKey: name == "ID"}

	if dbTag, ok := tag.Lookup("db"); ok {
		if dbTag == "-" {
			return FieldInfo{}, false
		}
		parts := strings.Split(dbTag, ",")
		if parts[0] != "" {
			fi.Column = parts[0]
		}
		for _, opt := range parts[1:] {
			switch opt {
			case "primaryKey":
				fi.PrimaryKey = true
			case "token":
				fi.Token = true
			}
		}
	}
	return fi, true
}

// parseRelation reads a tag such as
//
//	rel:"child,foreign_key:order_id"
//	rel:"link,junction:OrderTag,foreign_key:order_id,references:tag_id"
//	rel:"reference,parent_key:customer_id,lazy"
//
// The target type is taken from the handle's type argument unless a
// target option names it.
func parseRelation(owner string, field *ast.Field, tag string) (RelationInfo, error) {
	name := field.Names[0].Name
	goType := typeToString(field.Type)
	parts := strings.Split(tag, ",")
	handle, elem := handleElem(goType)
	ri := RelationInfo{FieldName: name, Kind: RelationKind(parts[0]), Handle: handle, ElemType: elem}
	ri.Target = strings.TrimPrefix(ri.ElemType, "*")
	if i := strings.LastIndex(ri.Target, "."); i >= 0 {
		ri.Target = ri.Target[i+1:]
	}

	for _, opt := range parts[1:] {
		key, value, _ := strings.Cut(opt, ":")
		switch key {
		case "target":
			ri.Target = value
		case "foreign_key":
			ri.ForeignKey = value
		case "parent_key":
			ri.ParentKey = value
		case "junction":
			ri.Junction = value
		case "references":
			ri.References = value
		case "target_key":
			ri.TargetKey = value
		case "lazy":
			ri.Lazy = true
		case "save_before":
			ri.SaveBefore = true
		default:
			return RelationInfo{}, errors.Newf("%s: unknown rel option %q", name, key)
		}
	}
	if ri.ElemType == "" {
		return RelationInfo{}, errors.Newf("%s: rel field must be *orm.Many[T] or *orm.One[T], got %s", name, goType)
	}

	ownerKey := naming.CamelToSnake(owner) + "_id"
	switch ri.Kind {
	case RelChild:
		if ri.ForeignKey == "" {
			ri.ForeignKey = ownerKey
		}
	case RelReference:
		if ri.ParentKey == "" {
			ri.ParentKey = naming.CamelToSnake(name) + "_id"
		}
	case RelLink:
		if ri.Junction == "" {
			return RelationInfo{}, errors.Newf("%s: link requires junction", name)
		}
		if ri.ForeignKey == "" {
			ri.ForeignKey = ownerKey
		}
		if ri.References == "" {
			ri.References = naming.CamelToSnake(ri.Target) + "_id"
		}
	default:
		return RelationInfo{}, errors.Newf("%s: unknown rel kind %q", name, ri.Kind)
	}
	return ri, nil
}

// handleElem splits "*orm.Many[T]" or "*orm.One[T]" into the handle name
// and T.
func handleElem(goType string) (string, string) {
	for _, handle := range []string{"Many", "One"} {
		prefix := "*orm." + handle + "["
		if strings.HasPrefix(goType, prefix) && strings.HasSuffix(goType, "]") {
			return handle, goType[len(prefix) : len(goType)-1]
		}
	}
	return "", ""
}

func typeToString(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.SelectorExpr:
		return typeToString(t.X) + "." + t.Sel.Name
	case *ast.StarExpr:
		return "*" + typeToString(t.X)
	case *ast.IndexExpr:
		return typeToString(t.X) + "[" + typeToString(t.Index) + "]"
	case *ast.ArrayType:
		if t.Len == nil {
			return "[]" + typeToString(t.Elt)
		}
		return fmt.Sprintf("[%s]%s", typeToString(t.Len), typeToString(t.Elt))
	case *ast.BasicLit:
		return t.Value
	default:
		return fmt.Sprintf("%T", expr)
	}
}
