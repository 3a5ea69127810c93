package model

import "time"

// Performance is one showing of a play in a hall.  The pair
// (HallID, ShowTime) is unique.
//
// Fields:
//  ID        – primary key identifier.
//  PlayID    – play being performed; deleting the play deletes the performance.
//  HallID    – hall hosting the performance; the hall cannot be deleted while referenced.
//  ShowTime  – start of the performance, stored in UTC.
//  CreatedAt – creation timestamp.
type Performance struct {
	ID        uint64    `json:"id"`
	PlayID    uint64    `json:"play"`
	HallID    uint64    `json:"theatre_hall"`
	ShowTime  time.Time `json:"show_time"`
	CreatedAt time.Time `json:"-"`
}

// PerformanceDetail is the read shape of a performance with its play and
// hall expanded.
type PerformanceDetail struct {
	ID       uint64    `json:"id"`
	Play     Play      `json:"play"`
	Hall     HallView  `json:"theatre_hall"`
	ShowTime time.Time `json:"show_time"`
}
