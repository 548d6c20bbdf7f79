package report

import "strings"

// ServiceRequest is the detail of GET /service-requests/{id}.
type ServiceRequest struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	CreatedAt     string         `json:"createdAt"`
	DoctorRequest *DoctorRequest `json:"doctorRequest"`
}

// DoctorRequest names the physician who ordered the exam.
type DoctorRequest struct {
	DoctorName string `json:"doctorName"`
}

// DoctorName returns the ordering physician, or "".
func (s *ServiceRequest) DoctorName() string {
	if s == nil || s.DoctorRequest == nil {
		return ""
	}
	return s.DoctorRequest.DoctorName
}

// CreatedOn is the date part of CreatedAt, which the API sends already
// formatted as "dd/mm/aaaa, hh:mm:ss".
func (s *ServiceRequest) CreatedOn() string {
	if s == nil {
		return ""
	}
	date, _, _ := strings.Cut(s.CreatedAt, ",")
	return strings.TrimSpace(date)
}

// Tabs of the report page.
const (
	TabReport = "report"
	TabImages = "images"
)

// Page is the view model of the medical report page.
type Page struct {
	ID             string
	ServiceRequest *ServiceRequest
	Tab            string
	// PDFURL is embedded by the viewer; DownloadURL forces an attachment.
	PDFURL      string
	DownloadURL string
}
