package models

import "time"

// DashboardSummary aggregates admin home-screen counters.
type DashboardSummary struct {
	TotalStudents      int                `json:"totalStudents"`
	StudentsByGrade    map[GradeLevel]int `json:"studentsByGrade"`
	PresentToday       int                `json:"presentToday"`
	AbsentToday        int                `json:"absentToday"`
	StudentsWithoutPay int                `json:"studentsWithoutPayment"`
	TotalPaidMonths    int                `json:"totalPaidMonths"`
	Videos             int                `json:"videos"`
	Books              int                `json:"books"`
	GeneratedAt        time.Time          `json:"generatedAt"`
}
