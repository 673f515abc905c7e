package core

import (
	"bytes"
	"embed"
	htmltmpl "html/template"
	"io/fs"
	"net/mail"
	"path"
	"strings"
	"sync"
	texttmpl "text/template"

	"github.com/pkg/errors"
)

//go:embed templates/email/*
var templateFS embed.FS

var (
	templates   tmplCache
	tmplInit    sync.Once
	tmplInitErr error
)

type (
	tmplCacheEntry map[string]interface{}    // {ext: *Template}
	tmplCache      map[string]tmplCacheEntry // {name: {tmplCacheEntry}}

	EmailMessage struct {
		To      []mail.Address
		Cc      []mail.Address
		Subject string
		BodyStr string // simple text/plain, non-templated content

		// templated contents
		TemplateName string // without ext
		TemplateData interface{}
		TextContent  string
		HTMLContent  string
	}

	ContextData struct {
		FrontendBaseURL string
		Data            interface{}
	}

	// EmailService is any service that can send emails
	EmailService interface {
		// SendMessages sends messages concurrently
		SendMessages(messages ...*EmailMessage)
	}
)

func (m *EmailMessage) getTemplate(ext string) (interface{}, bool) {
	cache, ok := templates[m.TemplateName]
	if !ok {
		return nil, ok
	}
	tmplEntry, ok := cache[ext]
	return tmplEntry, ok
}

func (m *EmailMessage) renderText(data ContextData) error {
	if m.BodyStr != "" {
		m.TextContent = m.BodyStr
		return nil
	} else if m.TemplateName == "" {
		return nil
	}

	tmplEntry, ok := m.getTemplate(".txt")
	if !ok {
		return errors.Errorf("no text template named %q", m.TemplateName)
	}
	tmpl := tmplEntry.(*texttmpl.Template)

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return err
	}
	m.TextContent = buff.String()
	return nil
}

func (m *EmailMessage) renderHTML(data ContextData) error {
	if m.TemplateName == "" {
		return nil
	}

	tmplEntry, ok := m.getTemplate(".gohtml")
	if !ok {
		return nil
	}
	tmpl := tmplEntry.(*htmltmpl.Template)

	var buff bytes.Buffer
	if err := tmpl.Execute(&buff, data); err != nil {
		return err
	}
	m.HTMLContent = buff.String()
	return nil
}

// Render fills TextContent and HTMLContent from the message's template.
func (m *EmailMessage) Render(frontendBaseURL string) error {
	if m.TemplateName != "" {
		tmplInit.Do(parseTemplates) // only execute once during first request
		if tmplInitErr != nil {
			return errors.Wrap(tmplInitErr, "parsing templates")
		}
	}
	data := ContextData{FrontendBaseURL: frontendBaseURL, Data: m.TemplateData}
	if err := m.renderText(data); err != nil {
		return errors.Wrap(err, "rendering text")
	}
	return errors.Wrap(m.renderHTML(data), "rendering html")
}

func (m *EmailMessage) HasRecipients() bool { return len(m.To) > 0 }
func (m *EmailMessage) HasContent() bool    { return (m.TextContent != "") || (m.HTMLContent != "") }

func parseTemplates() {
	templates = make(tmplCache)

	root := "templates/email"
	fps, err := fs.Glob(templateFS, path.Join(root, "*"))
	if err != nil {
		tmplInitErr = err
		return
	}

	for _, fp := range fps {
		fname := path.Base(fp)
		ext := path.Ext(fname)
		if strings.HasPrefix(fname, "_") || !(ext == ".txt" || ext == ".gohtml") {
			continue
		}
		name := strings.TrimSuffix(fname, ext)
		entry, ok := templates[name]
		if !ok {
			entry = make(tmplCacheEntry)
			templates[name] = entry
		}
		if ext == ".txt" {
			tmpl, err := texttmpl.ParseFS(templateFS, path.Join(root, "_base.txt"), fp)
			if err != nil {
				tmplInitErr = err
				return
			}
			entry[ext] = tmpl.Option("missingkey=error")
		} else {
			tmpl, err := htmltmpl.ParseFS(templateFS, path.Join(root, "_base.gohtml"), fp)
			if err != nil {
				tmplInitErr = err
				return
			}
			entry[ext] = tmpl.Option("missingkey=error")
		}
	}
}
