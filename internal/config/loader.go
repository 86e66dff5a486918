package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
)

// sourcePatch は、ソース設定をデコードするための中間ヘルパー構造体です。
// テンプレートを上書きする項目を区別するため、全てポインタで保持します。
type sourcePatch struct {
	Enabled     *bool              `json:"enabled,omitempty"`
	Name        *string            `json:"name,omitempty"`
	UseTemplate string             `json:"use_template,omitempty"`
	Engine      *string            `json:"engine,omitempty"`
	Domain      *string            `json:"domain,omitempty"`
	Cookies     *map[string]string `json:"cookies,omitempty"`
}

// rawConfig は、設定ファイルをデコードするための中間構造体です。
type rawConfig struct {
	ConfigVersion        string            `json:"config_version"`
	Network              NetworkSettings   `json:"network"`
	SourceTemplates      map[string]Source `json:"source_templates"`
	Sources              []sourcePatch     `json:"sources"`
	CatalogPath          string            `json:"catalog_path"`
	WebUIAddr            string            `json:"web_ui_addr"`
	MaxConcurrentFetches int               `json:"max_concurrent_fetches"`
	EnableLogFile        bool              `json:"enable_log_file"`
	LogFilePath          string            `json:"log_file_path"`
}

// LoadAndResolve は、指定されたパスから設定ファイルを読み込み、解析と解決を行います。
func LoadAndResolve(path string) (*Config, error) {
	absPath, _ := filepath.Abs(path)
	cwd, _ := os.Getwd()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイル '%s' の読み込みに失敗しました (Abs: '%s', Cwd: '%s'): %w", path, absPath, cwd, err)
	}
	return ParseAndResolve(data)
}

// ParseAndResolve は、設定データのバイトスライスを解析し、テンプレートを解決して最終的な設定を返します。
// この関数はテストのために分離されています。
func ParseAndResolve(data []byte) (*Config, error) {
	var rawCfg rawConfig
	if err := json.Unmarshal(data, &rawCfg); err != nil {
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError

		if errors.As(err, &syntaxErr) {
			line, col := computeLineAndColumn(data, syntaxErr.Offset)
			return nil, fmt.Errorf("設定ファイルのJSON構文エラー (行 %d, 列 %d): %w", line, col, err)
		}
		if errors.As(err, &typeErr) {
			line, col := computeLineAndColumn(data, typeErr.Offset)
			return nil, fmt.Errorf("設定ファイルの型エラー (行 %d, 列 %d, フィールド '%s'): 期待値 %v, 実際 %v - %w",
				line, col, typeErr.Field, typeErr.Type, typeErr.Value, err)
		}
		return nil, fmt.Errorf("設定ファイルの解析に失敗しました: %w", err)
	}

	const compatibleVersion = "1.0"
	if rawCfg.ConfigVersion != compatibleVersion {
		return nil, fmt.Errorf("サポートされていない設定バージョン '%s' です。'%s' が必要です。", rawCfg.ConfigVersion, compatibleVersion)
	}

	resolvedConfig := &Config{
		ConfigVersion:        rawCfg.ConfigVersion,
		Network:              rawCfg.Network,
		SourceTemplates:      rawCfg.SourceTemplates,
		Sources:              make([]Source, 0, len(rawCfg.Sources)),
		CatalogPath:          rawCfg.CatalogPath,
		WebUIAddr:            rawCfg.WebUIAddr,
		MaxConcurrentFetches: rawCfg.MaxConcurrentFetches,
		EnableLogFile:        rawCfg.EnableLogFile,
		LogFilePath:          rawCfg.LogFilePath,
	}

	seen := make(map[string]bool, len(rawCfg.Sources))
	for i, patch := range rawCfg.Sources {
		var resolved Source
		if patch.UseTemplate != "" {
			template, ok := rawCfg.SourceTemplates[patch.UseTemplate]
			if !ok {
				name := "unknown"
				if patch.Name != nil {
					name = *patch.Name
				}
				return nil, fmt.Errorf("ソース '%s' が未定義のテンプレート '%s' を使用しています", name, patch.UseTemplate)
			}
			resolved = template
			resolved.Cookies = maps.Clone(template.Cookies)
		}
		applyPatch(&resolved, &patch)

		if resolved.Name == "" {
			return nil, fmt.Errorf("%d 番目のソースに name が指定されていません", i+1)
		}
		if resolved.Engine == "" {
			return nil, fmt.Errorf("ソース '%s' に engine が指定されていません", resolved.Name)
		}
		if seen[resolved.Name] {
			return nil, fmt.Errorf("ソース名 '%s' が重複しています", resolved.Name)
		}
		seen[resolved.Name] = true
		resolvedConfig.Sources = append(resolvedConfig.Sources, resolved)
	}

	resolvedConfig.Defaults()
	return resolvedConfig, nil
}

// ValidateEngines は、全てのソースのエンジンが known で認識されるかを検証します。
func (c *Config) ValidateEngines(known func(engine string) bool) error {
	for _, s := range c.Sources {
		if !known(s.Engine) {
			return fmt.Errorf("ソース '%s' のエンジン '%s' は登録されていません", s.Name, s.Engine)
		}
	}
	return nil
}

// applyPatch は、patchの非nilフィールドをtargetに上書きします。
// Cookie はテンプレートの値に追加され、同名のものは上書きされます。
func applyPatch(target *Source, patch *sourcePatch) {
	target.UseTemplate = patch.UseTemplate
	if patch.Enabled != nil {
		target.Enabled = patch.Enabled
	}
	if patch.Name != nil {
		target.Name = *patch.Name
	}
	if patch.Engine != nil {
		target.Engine = *patch.Engine
	}
	if patch.Domain != nil {
		target.Domain = *patch.Domain
	}
	if patch.Cookies != nil {
		if target.Cookies == nil {
			target.Cookies = make(map[string]string, len(*patch.Cookies))
		}
		maps.Copy(target.Cookies, *patch.Cookies)
	}
}

// computeLineAndColumn は、バイトオフセットから行番号と列番号（1始まり）を計算します。
func computeLineAndColumn(data []byte, offset int64) (int, int) {
	if offset < 0 || int(offset) > len(data) {
		return 0, 0
	}
	line := 1
	lastLineStart := 0
	for i, b := range data {
		if int64(i) == offset {
			return line, i - lastLineStart + 1
		}
		if b == '\n' {
			line++
			lastLineStart = i + 1
		}
	}
	return line, int(offset) - lastLineStart + 1
}
