package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reformagkh/pkg/models"
	"reformagkh/pkg/utils"
)

const tsvHeader = "Атрибуты паспорта\t\t\t\t\t\t\t\n" +
	"версия 2015\t\t\t\t\t\t\t\n" +
	"section-rus\tsubsection-rus\t attribute-rus \tsubattribute-rus\tsubsubattribute-rus\t\tSelector Code for Name\tSelector Code for Value\n"

func tsv(rows ...string) string {
	return tsvHeader + strings.Join(rows, "\n") + "\n"
}

func mustParseMap(t *testing.T, data string) AttributeMap {
	t.Helper()
	m, err := ParseAttributeMap(strings.NewReader(data))
	require.NoError(t, err)
	return m
}

const attrPage = `<html><body>
<div id="passport">
  <table>
    <tr><td>Год ввода в эксплуатацию</td><td> 1975 </td></tr>
    <tr><td>Серия</td><td>1-515</td></tr>
  </table>
  <p>Этажность</p>
</div>
</body></html>`

func TestParseAttributeMap(t *testing.T) {
	m := mustParseMap(t, tsv(
		"Общие сведения\t\t\t\t\tignored\t\t",
		"\t Год \t\t\t\t\t#passport tr:nth-child(1) td:nth-child(1)\t#passport tr:nth-child(1) td:nth-child(2)",
	))
	require.Len(t, m, 2)
	assert.Equal(t, [models.SectionLevels]string{"Общие сведения"}, m[0].Sections)
	assert.Empty(t, m[0].NameSelector)
	assert.Equal(t, "Год", m[1].Sections[1], "cells are trimmed of spaces")
	assert.Equal(t, "#passport tr:nth-of-type(1) td:nth-of-type(1)", m[1].NameSelector)
	assert.Equal(t, "#passport tr:nth-of-type(1) td:nth-of-type(2)", m[1].ValueSelector)
}

func TestParseAttributeMap_QuotedNewlinesRemoved(t *testing.T) {
	m := mustParseMap(t, tsv("\"Общие\nсведения\"\t\t\t\t\t\t\t"))
	require.Len(t, m, 1)
	assert.Equal(t, "Общиесведения", m[0].Sections[0])
}

func TestParseAttributeMap_Errors(t *testing.T) {
	_, err := ParseAttributeMap(strings.NewReader("a\nb\nsection-rus\tSelector Code for Name\n"))
	assert.ErrorIs(t, err, utils.ErrParsing)
	assert.Contains(t, err.Error(), "subsection-rus")

	_, err = ParseAttributeMap(strings.NewReader("only\nmetadata\n"))
	assert.ErrorIs(t, err, utils.ErrParsing)

	_, err = ParseAttributeMap(strings.NewReader(tsv("A\t\t\t\t\t\tdiv[[\t")))
	assert.ErrorIs(t, err, utils.ErrParsing)
	assert.Contains(t, err.Error(), "row 4")
}

func TestLoadAttributeMap(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attributes.tsv")
	require.NoError(t, os.WriteFile(path, []byte(tsv("A\t\t\t\t\t\tp\tp")), 0644))

	m, err := LoadAttributeMap(path)
	require.NoError(t, err)
	assert.Len(t, m, 1)

	_, err = LoadAttributeMap(filepath.Join(t.TempDir(), "missing.tsv"))
	assert.ErrorIs(t, err, utils.ErrFilesystem)
}

func TestDeclarativeExtract_SectionPaths(t *testing.T) {
	m := AttributeMap{
		{Sections: [models.SectionLevels]string{"Sec1"}, NameSelector: "p", ValueSelector: "p"},
		{Sections: [models.SectionLevels]string{"", "Sub1"}, NameSelector: "p", ValueSelector: "p"},
	}
	res := NewDeclarativeExtractor(m).Extract(parse(t, attrPage), "1")
	require.True(t, res.IsOK())
	require.Len(t, res.Value, 2)
	assert.Equal(t, "Sec1", res.Value[0].AttrName)
	assert.Equal(t, "Sec1->Sub1", res.Value[1].AttrName)
}

func TestDeclarativeExtract_Entries(t *testing.T) {
	m := mustParseMap(t, tsv(
		"Общие сведения\t\t\t\t\t\t\t",
		"\tПаспорт\tГод ввода в эксплуатацию\t\t\t\t#passport tr:nth-child(1) td:nth-child(1)\t#passport tr:nth-child(1) td:nth-child(2)",
		"\t\tСерия дома\t\t\t\t#passport tr:nth-child(2) td:nth-child(1)\t#passport tr:nth-child(2) td:nth-child(3)",
		"\t\tЭтажность\t\t\t\t#passport p\t",
		"\t\tЛифты\t\t\t\t#passport tr:nth-child(9) td\t#passport tr:nth-child(9) td",
		"Благоустройство\t\t\t\t\t\t\t",
		"\t\t\t\t\t\t#passport p\t",
	))
	res := NewDeclarativeExtractor(m).Extract(parse(t, attrPage), "8434047")
	require.True(t, res.IsOK(), res.Reason)
	entries := res.Value
	require.Len(t, entries, 5, "rows without a name selector only update context")

	year := entries[0]
	assert.Equal(t, models.HouseID("8434047"), year.HouseID)
	assert.Equal(t, "Общие сведения->Паспорт->Год ввода в эксплуатацию", year.AttrName)
	require.NotNil(t, year.FoundName)
	assert.Equal(t, "Год ввода в эксплуатацию", *year.FoundName)
	assert.Equal(t, 0, *year.EditDistance)
	assert.Equal(t, "1975", *year.Value)

	serie := entries[1]
	assert.Equal(t, "Общие сведения->Паспорт->Серия дома", serie.AttrName, "earlier attribute name is overwritten")
	assert.Equal(t, "Серия", *serie.FoundName)
	assert.Equal(t, 5, *serie.EditDistance, "distance counts characters, not bytes")
	assert.Equal(t, models.ValueNotFound, *serie.Value)

	floors := entries[2]
	assert.Equal(t, "Этажность", *floors.FoundName)
	assert.Equal(t, models.ValueNotFound, *floors.Value, "empty value selector")

	lifts := entries[3]
	assert.Equal(t, "Общие сведения->Паспорт->Лифты", lifts.AttrName)
	assert.Nil(t, lifts.FoundName)
	assert.Nil(t, lifts.EditDistance)
	assert.Nil(t, lifts.Value)

	sticky := entries[4]
	assert.Equal(t, "Благоустройство->Паспорт->Лифты", sticky.AttrName, "levels are never reset")
	assert.Equal(t, 11, *sticky.EditDistance, "expected label carries over from the last named section")
}

func TestDeclarativeExtract_TransientPage(t *testing.T) {
	m := AttributeMap{{Sections: [models.SectionLevels]string{"A"}, NameSelector: "p"}}
	res := NewDeclarativeExtractor(m).Extract(parse(t, `<html><body>504 Gateway Time-out</body></html>`), "1")
	assert.Equal(t, models.ResultFailed, res.Status)
}

func TestSectionPath(t *testing.T) {
	assert.Equal(t, "", SectionPath([models.SectionLevels]string{}))
	assert.Equal(t, "A->C", SectionPath([models.SectionLevels]string{"A", "", "C"}))
}
