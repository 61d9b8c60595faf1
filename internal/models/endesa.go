// Package models содержит доменные типы шлюза: дискриминаторы гранулярности,
// имена коллекций с агрегатами потребления и запрос к хранилищу,
// который строится заново на каждый HTTP-запрос.
package models

import "go.mongodb.org/mongo-driver/bson"

// Discriminator выбирает гранулярность агрегата (параметр t).
type Discriminator string

const (
	ByHours          Discriminator = "h"
	ByHoursProjected Discriminator = "hp"
	ByDay            Discriminator = "d"
	ByMonth          Discriminator = "m"
	ByYear           Discriminator = "y"
	Stats            Discriminator = "s"
)

// Collection имя коллекции с агрегатами в хранилище документов.
type Collection string

const (
	CollectionHours Collection = "endesa_byHours"
	CollectionDay   Collection = "endesa_byDay"
	CollectionMonth Collection = "endesa_byMonth"
	CollectionYear  Collection = "endesa_byYear"
	CollectionStats Collection = "endesa_stats"
)

var collections = map[Discriminator]Collection{
	ByHours:          CollectionHours,
	ByHoursProjected: CollectionHours,
	ByDay:            CollectionDay,
	ByMonth:          CollectionMonth,
	ByYear:           CollectionYear,
	Stats:            CollectionStats,
}

// Collection возвращает коллекцию для дискриминатора и false, если он неизвестен.
func (d Discriminator) Collection() (Collection, bool) {
	c, ok := collections[d]
	return c, ok
}

// Hourly сообщает, относится ли дискриминатор к почасовым данным (допускает d1/d2).
func (d Discriminator) Hourly() bool {
	return d == ByHours || d == ByHoursProjected
}

// Cacheable сообщает, можно ли кешировать ответ. Почасовые данные не кешируются.
func (d Discriminator) Cacheable() bool {
	switch d {
	case ByDay, ByMonth, ByYear, Stats:
		return true
	default:
		return false
	}
}

// HourlyProjection исключает служебные поля из почасовых документов для t=hp.
func HourlyProjection() bson.D {
	return bson.D{
		{Key: "dd", Value: 0},
		{Key: "y", Value: 0},
		{Key: "m", Value: 0},
		{Key: "d", Value: 0},
	}
}

// Query запрос к хранилищу, собранный из параметров одного HTTP-запроса.
// Filter и Projection могут быть nil.
type Query struct {
	Discriminator Discriminator
	Collection    Collection
	Filter        bson.D
	Projection    bson.D
}

// Document документ хранилища, шлюз не интерпретирует его структуру.
type Document = map[string]any

// QueryParams сырые параметры запроса GET /data/endesa.
type QueryParams struct {
	T  string `validate:"required,oneof=h hp d m y s"`
	Q  string
	D1 string
	D2 string
}
