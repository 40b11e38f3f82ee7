package postgres

import (
	"github.com/diagnosis/tourbook/internal/domain"
	"github.com/diagnosis/tourbook/internal/query"
)

var TourSchema = query.Schema{
	"id":              {Column: "id", Kind: query.Int},
	"name":            {Column: "name", Kind: query.String},
	"slug":            {Column: "slug", Kind: query.String},
	"duration":        {Column: "duration", Kind: query.Int, Multi: true},
	"maxGroupSize":    {Column: "max_group_size", Kind: query.Int, Multi: true},
	"difficulty":      {Column: "difficulty", Kind: query.String, Multi: true},
	"ratingsAverage":  {Column: "ratings_average", Kind: query.Float, Multi: true},
	"ratingsQuantity": {Column: "ratings_quantity", Kind: query.Int, Multi: true},
	"price":           {Column: "price", Kind: query.Float, Multi: true},
	"priceDiscount":   {Column: "price_discount", Kind: query.Float},
	"summary":         {Column: "summary", Kind: query.String},
	"description":     {Column: "description", Kind: query.String},
	"imageCover":      {Column: "image_cover", Kind: query.String},
	"images":          {Column: "images", Kind: query.List},
	"startDates":      {Column: "start_dates", Kind: query.List},
	"secretTour":      {Column: "secret_tour", Kind: query.Bool, Hidden: true},
	"startLocation":   {Column: "start_location", Kind: query.Document},
	"locations":       {Column: "locations", Kind: query.Document},
	"guides":          {Column: "guides", Kind: query.List},
	"createdAt":       {Column: "created_at", Kind: query.Time},
}

// The password hash and reset fields are deliberately absent: no list or
// projection can reach them.
var UserSchema = query.Schema{
	"id":        {Column: "id", Kind: query.Int},
	"name":      {Column: "name", Kind: query.String},
	"email":     {Column: "email", Kind: query.String},
	"photo":     {Column: "photo", Kind: query.String},
	"role":      {Column: "role", Kind: query.String, Multi: true},
	"active":    {Column: "active", Kind: query.Bool, Hidden: true},
	"createdAt": {Column: "created_at", Kind: query.Time},
}

var ReviewSchema = query.Schema{
	"id":        {Column: "id", Kind: query.Int},
	"review":    {Column: "review", Kind: query.String},
	"rating":    {Column: "rating", Kind: query.Int, Multi: true},
	"tour":      {Column: "tour_id", Kind: query.Int},
	"user":      {Column: "user_id", Kind: query.Int},
	"createdAt": {Column: "created_at", Kind: query.Time},
}

var BookingSchema = query.Schema{
	"id":                {Column: "id", Kind: query.Int},
	"tour":              {Column: "tour_id", Kind: query.Int},
	"user":              {Column: "user_id", Kind: query.Int},
	"price":             {Column: "price", Kind: query.Float},
	"paid":              {Column: "paid", Kind: query.Bool},
	"checkoutSessionId": {Column: "checkout_session_id", Kind: query.String},
	"createdAt":         {Column: "created_at", Kind: query.Time},
}

func tourColumns(t *domain.Tour) []Column {
	return []Column{
		{"name", t.Name},
		{"slug", t.Slug},
		{"duration", t.Duration},
		{"max_group_size", t.MaxGroupSize},
		{"difficulty", t.Difficulty},
		{"ratings_average", t.RatingsAverage},
		{"ratings_quantity", t.RatingsQuantity},
		{"price", t.Price},
		{"price_discount", t.PriceDiscount},
		{"summary", t.Summary},
		{"description", t.Description},
		{"image_cover", t.ImageCover},
		{"images", t.Images},
		{"start_dates", t.StartDates},
		{"secret_tour", t.SecretTour},
		{"start_location", t.StartLocation},
		{"locations", t.Locations},
		{"guides", t.Guides},
	}
}

func userColumns(u *domain.User) []Column {
	return []Column{
		{"name", u.Name},
		{"email", u.Email},
		{"photo", u.Photo},
		{"role", u.Role},
		{"active", u.Active},
	}
}

func reviewColumns(r *domain.Review) []Column {
	return []Column{
		{"review", r.Review},
		{"rating", r.Rating},
		{"tour_id", r.Tour},
		{"user_id", r.User},
	}
}

func bookingColumns(b *domain.Booking) []Column {
	return []Column{
		{"tour_id", b.Tour},
		{"user_id", b.User},
		{"price", b.Price},
		{"paid", b.Paid},
		{"checkout_session_id", b.CheckoutSessionID},
	}
}

func NewToursTable(db DB) *Table[domain.Tour] {
	return NewTable(db, "tours", TourSchema, tourColumns)
}

func NewUsersTable(db DB) *Table[domain.User] {
	return NewTable(db, "users", UserSchema, userColumns)
}

func NewReviewsTable(db DB) *Table[domain.Review] {
	return NewTable(db, "reviews", ReviewSchema, reviewColumns)
}

func NewBookingsTable(db DB) *Table[domain.Booking] {
	return NewTable(db, "bookings", BookingSchema, bookingColumns)
}
