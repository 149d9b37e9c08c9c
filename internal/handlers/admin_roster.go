package handlers

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/doublec/ranchportal/internal/models"
)

const csvPageSize = 200

func (h *Handlers) fmtCSVTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.In(h.loc).Format("2006-01-02 15:04")
}

// GET /staff/members.csv honours the same filters as the member list.
func (h *Handlers) AdminMembersCSV(w http.ResponseWriter, r *http.Request) {
	f, _ := memberFilterFromQuery(r.URL.Query())
	f.Limit = csvPageSize

	var all []models.Member
	for f.Offset = 0; ; f.Offset += csvPageSize {
		page, total, err := h.svc.SearchMembers(r.Context(), f)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		all = append(all, page...)
		if len(page) < csvPageSize || int64(len(all)) >= total {
			break
		}
	}

	filename := fmt.Sprintf("members-%s.csv", h.svc.Now().In(h.loc).Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)

	cw := csv.NewWriter(w)
	defer cw.Flush()

	_ = cw.Write([]string{
		"Member ID", "First Name", "Last Name", "Parent", "Email", "Phone",
		"Tier", "Status", "Certification", "Attendance 30d", "Attendance All Time",
		"Last Check-in", "Registered",
	})
	for _, m := range all {
		email := ""
		if m.User != nil {
			email = m.User.Email
		}
		created := m.CreatedAt
		_ = cw.Write([]string{
			m.ID.String(),
			m.FirstName,
			m.LastName,
			m.ParentName,
			email,
			m.Phone,
			string(m.MembershipTier),
			string(m.Status),
			m.CertificationLevel,
			strconv.Itoa(m.Attendance30d),
			strconv.Itoa(m.AttendanceAllTime),
			h.fmtCSVTime(m.LastCheckinAt),
			h.fmtCSVTime(&created),
		})
	}
}
