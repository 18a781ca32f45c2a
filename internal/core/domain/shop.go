package domain

import "time"

type Shop struct {
	ID         int64     `json:"id" msgpack:"id" cbor:"id"`
	Name       string    `json:"name" msgpack:"name" cbor:"name"`
	TypeID     int64     `json:"typeId" msgpack:"typeId" cbor:"typeId"`
	Images     string    `json:"images" msgpack:"images" cbor:"images"`
	Area       string    `json:"area" msgpack:"area" cbor:"area"`
	Address    string    `json:"address" msgpack:"address" cbor:"address"`
	X          float64   `json:"x" msgpack:"x" cbor:"x"`
	Y          float64   `json:"y" msgpack:"y" cbor:"y"`
	AvgPrice   int64     `json:"avgPrice" msgpack:"avgPrice" cbor:"avgPrice"`
	Sold       int       `json:"sold" msgpack:"sold" cbor:"sold"`
	Comments   int       `json:"comments" msgpack:"comments" cbor:"comments"`
	Score      int       `json:"score" msgpack:"score" cbor:"score"`
	OpenHours  string    `json:"openHours" msgpack:"openHours" cbor:"openHours"`
	CreateTime time.Time `json:"createTime" msgpack:"createTime" cbor:"createTime"`
	UpdateTime time.Time `json:"updateTime" msgpack:"updateTime" cbor:"updateTime"`
}

type ShopType struct {
	ID   int64  `json:"id" msgpack:"id" cbor:"id"`
	Name string `json:"name" msgpack:"name" cbor:"name"`
	Icon string `json:"icon" msgpack:"icon" cbor:"icon"`
	Sort int    `json:"sort" msgpack:"sort" cbor:"sort"`
}
