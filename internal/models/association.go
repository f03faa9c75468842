package models

// Object type names in the remote store
const (
	ObjectTypeContact     = "contacts"
	ObjectTypeBooking     = "exam_bookings"
	ObjectTypeExamSession = "exam_sessions"
)

// Association relation types
const (
	RelationBookingToContact = "booking_to_contact"
	RelationBookingToSession = "booking_to_session"
	RelationContactToBooking = "contact_to_booking"
	RelationSessionToBooking = "session_to_booking"
)

// Association is a directed edge between two object identities in the
// remote store. Both ends are canonical string identities (FlexID) so
// equality never depends on the numeric/string type a given endpoint
// version happened to return.
type Association struct {
	FromID       FlexID `json:"from_id"`
	ToID         FlexID `json:"to_id"`
	RelationType string `json:"relation_type"`
}
