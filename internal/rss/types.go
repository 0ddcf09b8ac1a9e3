// rss - реализует pipeline.Fetcher для RSS 2.0 и Atom.
package rss

import "encoding/xml"

// feed - корень документа. RSS и Atom различаются по имени корневого элемента.
type feed struct {
	XMLName xml.Name
	// RSS 2.0.
	Channel channel `xml:"channel"`
	// Atom.
	Title   string      `xml:"title"`
	Entries []atomEntry `xml:"entry"`
}

// channel - RSS-канал, содержащий список записей.
type channel struct {
	Title string `xml:"title"`
	Items []item `xml:"item"`
}

// item описывает одну запись RSS-ленты.
type item struct {
	// Title - заголовок.
	Title string `xml:"title"`
	// Link - ссылка на материал. Может быть пустым у некоторых издателей,
	// тогда рассматриваем guid (если он - полноценный URL) как fallback.
	Link string `xml:"link"`
	// GUID - «перманентный» идентификатор записи.
	GUID guid `xml:"guid"`
	// PubDate - дата публикации в строковом виде.
	PubDate string `xml:"pubDate"`
	// Description - тизер, часто с HTML внутри CDATA.
	Description string `xml:"description"`
	// ContentHTML - расширение content:encoded с полным HTML-телом.
	ContentHTML string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
}

// guid - обёртка над <guid> с атрибутом isPermaLink.
type guid struct {
	IsPermaLink string `xml:"isPermaLink,attr"`
	Value       string `xml:",chardata"`
}

// atomEntry - запись Atom-ленты.
type atomEntry struct {
	Title     string     `xml:"title"`
	Links     []atomLink `xml:"link"`
	ID        string     `xml:"id"`
	Published string     `xml:"published"`
	Updated   string     `xml:"updated"`
	Summary   string     `xml:"summary"`
	Content   string     `xml:"content"`
}

// atomLink - <link rel="..." href="...">. Пустой rel равен alternate.
type atomLink struct {
	Rel  string `xml:"rel,attr"`
	Href string `xml:"href,attr"`
}
