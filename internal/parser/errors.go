package parser

import (
	"errors"
	"fmt"
)

// ParseError は、操作に必須の要素がページに存在しないことを表します（構造不一致）。
// 自動的な再試行は行いません。
type ParseError struct {
	Source string
	URL    string
	What   string // 見つからなかった要素（セレクタなど）
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("解析に失敗しました: %s が見つかりません (source=%s, url=%s)", e.What, e.Source, e.URL)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// AuthRequiredError は、ログインが必要な操作をセッションなしで行ったことを表します。
// 呼び出し元はサイトの故障ではなくログインを促すべきです。
type AuthRequiredError struct {
	Source string
	Domain string
	Cause  error
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("ログインが必要です (source=%s, domain=%s)", e.Source, e.Domain)
}

func (e *AuthRequiredError) Unwrap() error {
	return e.Cause
}

// IsParseError は、err が構造不一致エラーを含むかどうかを判定します。
// ログイン要求として再分類されたものは含みません。
func IsParseError(err error) bool {
	if IsAuthRequired(err) {
		return false
	}
	var pe *ParseError
	return errors.As(err, &pe)
}

// IsAuthRequired は、err がログイン要求エラーを含むかどうかを判定します。
func IsAuthRequired(err error) bool {
	var ae *AuthRequiredError
	return errors.As(err, &ae)
}

// AuthWall は、未ログイン時に発生した構造不一致をログイン要求に再分類します。
// ログイン済みの場合やそれ以外のエラーはそのまま返します。
func AuthWall(err error, authorized bool, source, domain string) error {
	if err == nil || authorized {
		return err
	}
	var pe *ParseError
	if !errors.As(err, &pe) {
		return err
	}
	return &AuthRequiredError{Source: source, Domain: domain, Cause: err}
}
