package sqlite

const schema = `
-- Tree metadata: entire bound, leaf capacity, id allocator state.
CREATE TABLE IF NOT EXISTS quad_meta (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL
);

-- Internal nodes. A node id absent from this table is a leaf.
CREATE TABLE IF NOT EXISTS quad_nodes (
    id INTEGER PRIMARY KEY,
    child_ids TEXT NOT NULL -- JSON array of child node ids
);

-- Leaf point lists. coords is the JSON array of coordinates, value
-- the codec-encoded payload.
CREATE TABLE IF NOT EXISTS quad_points (
    node_id INTEGER NOT NULL,
    coords TEXT NOT NULL,
    value BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quad_points_node_id ON quad_points(node_id);
`

const (
	metaEntire        = "entire"
	metaMaxNodePoints = "max_node_points"
	metaMaxNodeID     = "max_node_id"
)
