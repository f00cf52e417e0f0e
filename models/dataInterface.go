package models

type Identifier interface {
	GetId() int
}

// interface for dataloader result
type Data interface {
	Identifier
	GetDefault(int) Data
}

// loader loading more than one model by one id
type RelatedData interface {
	GetReferenceId() int
}
