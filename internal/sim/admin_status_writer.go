package sim

// AdminStatusWriter lets writers show whether the admin panel is being served.
type AdminStatusWriter interface {
	SetAdminStatus(addr string, listening bool)
}

// SetAdminStatus forwards the admin panel status to writers that display it.
func (mw *MultiWriter) SetAdminStatus(addr string, listening bool) {
	for _, w := range mw.writers {
		if aw, ok := w.(AdminStatusWriter); ok {
			aw.SetAdminStatus(addr, listening)
		}
	}
}
