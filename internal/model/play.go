package model

// Actor is a cast member that can be linked to plays.
type Actor struct {
	ID        uint64 `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Genre is a play genre, unique by name.
type Genre struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// Play is a staged work that performances are scheduled for.  Actors and
// Genres are loaded for reads; writes reference them by ID.
//
// Fields:
//  ID          – primary key identifier.
//  Title       – unique title.
//  Description – free text, may be empty.
//  Actors      – cast, ordered by last then first name.
//  Genres      – genres, ordered by name.
type Play struct {
	ID          uint64  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Actors      []Actor `json:"actors"`
	Genres      []Genre `json:"genres"`
}
