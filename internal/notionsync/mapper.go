package notionsync

import (
	"strconv"
	"time"

	"cloud.google.com/go/civil"
	"github.com/jomei/notionapi"
	"github.com/shopspring/decimal"
)

func richText(content string) []notionapi.RichText {
	return []notionapi.RichText{
		{
			Type: notionapi.ObjectTypeText,
			Text: &notionapi.Text{
				Content: content,
			},
		},
	}
}

// cellToProperty converts one export cell into a page property of the type
// the database declares for that column. ok is false for empty cells and
// for values that do not parse as the property type.
func cellToProperty(propType notionapi.PropertyConfigType, value string) (notionapi.Property, bool) {
	if value == "" {
		return nil, false
	}

	switch propType {
	case notionapi.PropertyConfigTypeTitle:
		return notionapi.TitleProperty{Title: richText(value)}, true

	case notionapi.PropertyConfigTypeRichText:
		return notionapi.RichTextProperty{RichText: richText(value)}, true

	case notionapi.PropertyConfigTypeNumber:
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return nil, false
		}
		f, _ := amount.Float64()
		return notionapi.NumberProperty{Number: f}, true

	case notionapi.PropertyConfigTypeDate:
		d, err := civil.ParseDate(value)
		if err != nil {
			return nil, false
		}
		start := notionapi.Date(time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC))
		return notionapi.DateProperty{Date: &notionapi.DateObject{Start: &start}}, true

	case notionapi.PropertyConfigTypeSelect:
		return notionapi.SelectProperty{Select: notionapi.Option{Name: value}}, true

	case notionapi.PropertyConfigTypeCheckbox:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return nil, false
		}
		return notionapi.CheckboxProperty{Checkbox: b}, true
	}

	return nil, false
}

// propertyText extracts the plain text of a page property as it would
// appear in an export cell. Returns empty string for other property types.
func propertyText(prop notionapi.Property) string {
	switch p := prop.(type) {
	case *notionapi.TitleProperty:
		return joinPlainText(p.Title)
	case *notionapi.RichTextProperty:
		return joinPlainText(p.RichText)
	case *notionapi.SelectProperty:
		return p.Select.Name
	case *notionapi.NumberProperty:
		return decimal.NewFromFloat(p.Number).String()
	case *notionapi.DateProperty:
		if p.Date != nil && p.Date.Start != nil {
			return civil.DateOf(time.Time(*p.Date.Start)).String()
		}
	case *notionapi.CheckboxProperty:
		return strconv.FormatBool(p.Checkbox)
	}
	return ""
}

func joinPlainText(texts []notionapi.RichText) string {
	var s string
	for _, t := range texts {
		if t.PlainText != "" {
			s += t.PlainText
		} else if t.Text != nil {
			s += t.Text.Content
		}
	}
	return s
}
