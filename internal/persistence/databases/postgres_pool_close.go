package databases

// Close allows pg-backed structs to be closed via Manager.Close's reflection helper.
func (p *pgSearch) Close() { p.pool.Close() }
func (p *pgVector) Close() { p.pool.Close() }
func (g *pgGraph) Close()  { g.pool.Close() }
