package adapter

import (
	"fmt"
	"slices"

	"GoMangaParsers/internal/parser"
)

// Factory は、ソースに結び付いた Context からパーサーを生成します。
type Factory func(pc *parser.Context) parser.Parser

// engine は、レジストリに登録されたエンジンの情報です。
type engine struct {
	factory       Factory
	defaultDomain string
}

// adapterRegistry は、エンジン名とパーサー実装のマッピングを保持します。
// パッケージ初期化後は読み取り専用です。
var adapterRegistry = map[string]engine{
	"grouple":   {factory: NewGrouple, defaultDomain: "readmanga.live"},
	"madara":    {factory: NewMadara, defaultDomain: "manhuaus.com"},
	"mangatown": {factory: NewMangaTown, defaultDomain: "www.mangatown.com"},
}

// GetAdapter は、指定されたエンジン名に対応するパーサーの新しいインスタンスを返します。
// ファクトリパターンを使用することで、新しいサイトへの対応の追加を容易にします。
func GetAdapter(engineName string, pc *parser.Context) (parser.Parser, error) {
	e, ok := adapterRegistry[engineName]
	if !ok {
		return nil, fmt.Errorf("エンジン名 '%s' に対応するアダプタが見つかりません", engineName)
	}
	return e.factory(pc), nil
}

// Engines は、登録されている全てのエンジン名を昇順で返します。
func Engines() []string {
	names := make([]string, 0, len(adapterRegistry))
	for name := range adapterRegistry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsKnownEngine は、エンジン名が登録済みかどうかを返します。
func IsKnownEngine(engineName string) bool {
	_, ok := adapterRegistry[engineName]
	return ok
}

// NewSource は、設定値からソースの識別情報を組み立てます。
// domain が空の場合はエンジンの既定ドメインを使用します。
func NewSource(name, engineName, domain string) (parser.Source, error) {
	e, ok := adapterRegistry[engineName]
	if !ok {
		return parser.Source{}, fmt.Errorf("エンジン名 '%s' に対応するアダプタが見つかりません", engineName)
	}
	if domain == "" {
		domain = e.defaultDomain
	}
	return parser.Source{
		Name:          name,
		Title:         name,
		Engine:        engineName,
		DefaultDomain: domain,
	}, nil
}
