package handler

import "github.com/gin-gonic/gin"

// Register mounts the API on r. sessions must resolve the caller's session
// (auth.SessionCookie); admin guards the records endpoints.
func (h *Handler) Register(r gin.IRouter, sessions, admin gin.HandlerFunc) {
	r.GET("/healthz", h.Healthz)

	api := r.Group("/v1")
	{
		api.GET("/academic-years", h.AcademicYears)

		s := api.Group("", sessions)
		s.GET("/session", h.GetSession)
		s.PUT("/session/view", h.SetView)
		s.POST("/session/login", h.Login)
		s.POST("/session/logout", h.Logout)

		s.GET("/draft", h.GetDraft)
		s.PUT("/draft", h.UpdateDraft)
		s.POST("/draft/image", h.AttachImage)
		s.DELETE("/draft/image", h.ClearImage)
		s.POST("/draft/submit", h.Submit)
		s.POST("/draft/edit", h.Edit)
		s.POST("/draft/confirm", h.Confirm)

		records := s.Group("/records", admin)
		records.GET("", h.ListRecords)
		records.GET("/export", h.ExportRecords)
		records.GET("/image", h.RecordImage)
	}
}
