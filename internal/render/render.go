// Copyright 2025 KrakLabs
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns a query result and a rule's static parameters
// into rendered source text, using a strict, closed text/template
// dialect: undefined variables are errors, the helper registry has no
// access to wall-clock time, randomness, the environment, or I/O, and
// every interpolation goes through a target-language-aware escaper.
package render

import (
	"fmt"
	"strings"
	"text/template"
)

// RenderErrorKind distinguishes the fatal-for-the-rule render failure
// modes named in the spec.
type RenderErrorKind string

const (
	RenderErrUndefinedVariable RenderErrorKind = "undefined_variable"
	RenderErrTypeMismatch      RenderErrorKind = "type_mismatch"
	RenderErrUnsafeInterp      RenderErrorKind = "unsafe_interpolation"
)

// RenderError reports why a template could not be rendered.
type RenderError struct {
	Kind RenderErrorKind
	Msg  string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %s", e.Kind, e.Msg)
}

// funcMap returns the closed helper registry bound to lang. It
// deliberately excludes now/env/rand and anything with filesystem or
// network access.
func funcMap(lang OutputLanguage) template.FuncMap {
	return template.FuncMap{
		"escape": func(tv TermValue) (string, error) {
			if !tv.IsLiteral() {
				return "", &RenderError{Kind: RenderErrTypeMismatch,
					Msg: fmt.Sprintf("escape expects a literal, got %s", kindName(tv))}
			}
			return lang.Escape(tv.Value), nil
		},
		"escapeIdent": func(tv TermValue) (string, error) {
			ident, err := lang.EscapeIdent(tv.Value)
			if err != nil {
				return "", &RenderError{Kind: RenderErrUnsafeInterp, Msg: err.Error()}
			}
			return ident, nil
		},
		"localName": func(tv TermValue) (string, error) {
			if !tv.IsIRI() {
				return "", &RenderError{Kind: RenderErrTypeMismatch,
					Msg: fmt.Sprintf("localName expects an IRI, got %s", kindName(tv))}
			}
			return localName(tv.Value), nil
		},
		"upperCamel": func(s string) string { return toCamel(s, true) },
		"lowerCamel": func(s string) string { return toCamel(s, false) },
		"param": func(ctx Context, name string) (string, error) {
			v, ok := ctx.Parameters[name]
			if !ok {
				return "", &RenderError{Kind: RenderErrUndefinedVariable,
					Msg: fmt.Sprintf("rule has no parameter %q", name)}
			}
			return v, nil
		},
	}
}

func kindName(tv TermValue) string {
	switch {
	case tv.IsIRI():
		return "IRI"
	case tv.IsLiteral():
		return "literal"
	default:
		return "blank node"
	}
}

func localName(iri string) string {
	for _, sep := range []string{"#", "/"} {
		if idx := strings.LastIndex(iri, sep); idx >= 0 && idx < len(iri)-1 {
			return iri[idx+1:]
		}
	}
	return iri
}

func toCamel(s string, upperFirst bool) string {
	var sb strings.Builder
	upperNext := upperFirst
	for _, r := range s {
		switch {
		case r == '_' || r == '-' || r == ' ':
			upperNext = true
		case upperNext:
			sb.WriteRune(toUpperRune(r))
			upperNext = false
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

func toUpperRune(r rune) rune {
	if r >= 'a' && r <= 'z' {
		return r - ('a' - 'A')
	}
	return r
}

// CompileCheck parses templateSrc without executing it, used by the
// guard kernel's template-compile check (G3).
func CompileCheck(name, templateSrc string, lang OutputLanguage) error {
	_, err := template.New(name).Option("missingkey=error").Funcs(funcMap(lang)).Parse(templateSrc)
	if err != nil {
		return &RenderError{Kind: RenderErrUnsafeInterp, Msg: err.Error()}
	}
	return nil
}

// Render executes templateSrc against ctx using lang's escaping rules.
// Referencing an undefined top-level field and referencing an unbound
// row variable (a "missingkey" error) both fail when the template is
// executed, and both are surfaced here as RenderErrUndefinedVariable.
func Render(name, templateSrc string, lang OutputLanguage, ctx Context) (string, error) {
	tmpl, err := template.New(name).Option("missingkey=error").Funcs(funcMap(lang)).Parse(templateSrc)
	if err != nil {
		return "", &RenderError{Kind: RenderErrUnsafeInterp, Msg: err.Error()}
	}

	var buf strings.Builder
	if err := tmpl.Execute(&buf, ctx); err != nil {
		if rerr, ok := asRenderError(err); ok {
			return "", rerr
		}
		return "", &RenderError{Kind: RenderErrUndefinedVariable, Msg: err.Error()}
	}
	return buf.String(), nil
}

func asRenderError(err error) (*RenderError, bool) {
	for err != nil {
		if rerr, ok := err.(*RenderError); ok {
			return rerr, true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil, false
		}
		err = unwrapper.Unwrap()
	}
	return nil, false
}
