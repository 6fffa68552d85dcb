package engine

import (
	"fmt"
	"sort"

	"github.com/ravskel/conveyor/internal/domain"
)

// Node — узел графа задач.
type Node struct {
	// Def — определение задачи из PipelineSpec.
	Def *domain.TaskDef

	// ID — идентификатор задачи (копия Def.ID).
	ID string

	// DependsOn — узлы, от которых зависит этот узел.
	// Порядок повторяет порядок depends_on в определении задачи.
	DependsOn []*Node

	// Dependents — узлы, которые зависят от этого узла.
	Dependents []*Node

	// InDegree — количество входящих рёбер (зависимостей).
	InDegree int

	// Layer — минимальная глубина зависимостей (0 для корней).
	Layer int
}

// Graph — направленный ациклический граф задач пайплайна.
type Graph struct {
	// Spec — исходная декларация пайплайна.
	Spec *domain.PipelineSpec

	// Nodes — все узлы графа (taskID → Node).
	Nodes map[string]*Node

	// Roots — узлы без зависимостей (точки входа).
	Roots []*Node

	layers [][]string
}

// Build строит граф из PipelineSpec.
//
// Валидация выполняется один раз:
//   - уникальность и непустота ID
//   - известность вида задачи и коннектора
//   - разрешимость всех depends_on
//   - отсутствие циклов (DFS, back-edge к узлу в состоянии "visiting")
//
// Ошибка валидации означает, что граф никогда не будет исполнен.
func Build(spec *domain.PipelineSpec) (*Graph, error) {
	if spec == nil || len(spec.Tasks) == 0 {
		return nil, ErrEmptyPipeline
	}

	g := &Graph{
		Spec:  spec,
		Nodes: make(map[string]*Node, len(spec.Tasks)),
	}

	// Первый проход: создаём узлы, проверяем ID и вид задачи.
	for i := range spec.Tasks {
		def := &spec.Tasks[i]

		if def.ID == "" {
			return nil, NewValidationError("", "id", "task has empty ID", ErrEmptyTaskID)
		}
		if _, exists := g.Nodes[def.ID]; exists {
			return nil, NewValidationError(def.ID, "id",
				fmt.Sprintf("duplicate task ID %q", def.ID), ErrDuplicateTaskID)
		}
		if !domain.ValidTaskKind(def.Kind) {
			return nil, NewValidationError(def.ID, "kind",
				fmt.Sprintf("unknown task kind %q", def.Kind), ErrUnknownTaskKind)
		}
		if def.Connector == "" {
			return nil, NewValidationError(def.ID, "connector",
				"task has empty connector", ErrEmptyConnector)
		}

		g.Nodes[def.ID] = &Node{
			Def:        def,
			ID:         def.ID,
			DependsOn:  make([]*Node, 0, len(def.DependsOn)),
			Dependents: make([]*Node, 0),
		}
	}

	// Второй проход: связываем рёбра.
	for i := range spec.Tasks {
		def := &spec.Tasks[i]
		node := g.Nodes[def.ID]

		for _, depID := range def.DependsOn {
			if depID == def.ID {
				return nil, NewValidationError(def.ID, "depends_on",
					"task depends on itself", ErrSelfDependency)
			}
			dep, exists := g.Nodes[depID]
			if !exists {
				return nil, NewValidationError(def.ID, "depends_on",
					fmt.Sprintf("depends on unknown task: %s", depID), ErrUnknownDependency)
			}
			g.addEdge(dep, node)
		}
	}

	g.findRoots()

	// Поиск циклов и расчёт слоёв.
	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	g.computeLayers()

	return g, nil
}

// addEdge добавляет ребро между узлами.
// Дубликаты игнорируются, чтобы не задваивать InDegree.
func (g *Graph) addEdge(from, to *Node) {
	for _, dep := range to.DependsOn {
		if dep.ID == from.ID {
			return // уже связаны
		}
	}
	from.Dependents = append(from.Dependents, to)
	to.DependsOn = append(to.DependsOn, from)
	to.InDegree++
}

// findRoots находит узлы без входящих рёбер.
func (g *Graph) findRoots() {
	g.Roots = make([]*Node, 0)
	for _, id := range g.TaskIDs() {
		node := g.Nodes[id]
		if node.InDegree == 0 {
			g.Roots = append(g.Roots, node)
		}
	}
}

// Цвета DFS-обхода при поиске циклов.
const (
	colorWhite = iota // не посещён
	colorGray         // в текущем пути обхода ("visiting")
	colorBlack        // обход завершён ("visited")
)

// detectCycles ищет циклы обходом в глубину.
// Back-edge к узлу в состоянии "visiting" означает цикл;
// ошибка содержит полный путь цикла.
func (g *Graph) detectCycles() error {
	colors := make(map[string]int, len(g.Nodes))
	var path []string

	var visit func(node *Node) *CycleError
	visit = func(node *Node) *CycleError {
		colors[node.ID] = colorGray
		path = append(path, node.ID)

		for _, dep := range node.Dependents {
			switch colors[dep.ID] {
			case colorGray:
				// Back-edge: вырезаем цикл из текущего пути.
				start := 0
				for i, id := range path {
					if id == dep.ID {
						start = i
						break
					}
				}
				cycle := append(append([]string{}, path[start:]...), dep.ID)
				return &CycleError{Path: cycle}
			case colorWhite:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		path = path[:len(path)-1]
		colors[node.ID] = colorBlack
		return nil
	}

	// Детерминированный порядок обхода.
	for _, id := range g.TaskIDs() {
		if colors[id] == colorWhite {
			if err := visit(g.Nodes[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

// computeLayers раскладывает узлы по минимальной глубине зависимостей:
// слой 0 — корни, слой узла = 1 + максимум слоёв его зависимостей.
// Вызывается только после detectCycles.
func (g *Graph) computeLayers() {
	// Kahn-подобный проход: узел получает слой, когда все зависимости размечены.
	inDegree := make(map[string]int, len(g.Nodes))
	queue := make([]*Node, 0, len(g.Roots))
	for _, id := range g.TaskIDs() {
		node := g.Nodes[id]
		inDegree[id] = node.InDegree
		if node.InDegree == 0 {
			node.Layer = 0
			queue = append(queue, node)
		}
	}

	maxLayer := 0
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		if node.Layer > maxLayer {
			maxLayer = node.Layer
		}

		for _, dep := range node.Dependents {
			if node.Layer+1 > dep.Layer {
				dep.Layer = node.Layer + 1
			}
			inDegree[dep.ID]--
			if inDegree[dep.ID] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	layers := make([][]string, maxLayer+1)
	for _, id := range g.TaskIDs() {
		node := g.Nodes[id]
		layers[node.Layer] = append(layers[node.Layer], id)
	}
	for _, layer := range layers {
		sort.Strings(layer)
	}
	g.layers = layers
}

// TopologicalLayers возвращает задачи, сгруппированные по минимальной
// глубине зависимостей. Используется планировщиком только как подсказка
// для честности порядка: фактическая готовность определяется завершением
// зависимостей, задачи одного слоя могут стартовать в разное время.
func (g *Graph) TopologicalLayers() [][]string {
	return g.layers
}

// Node возвращает узел по ID задачи (nil, если нет).
func (g *Graph) Node(id string) *Node {
	return g.Nodes[id]
}

// Dependents возвращает ID прямых зависимых задач.
func (g *Graph) Dependents(id string) []string {
	node := g.Nodes[id]
	if node == nil {
		return nil
	}
	out := make([]string, len(node.Dependents))
	for i, dep := range node.Dependents {
		out[i] = dep.ID
	}
	return out
}

// TaskIDs возвращает отсортированный список ID задач.
func (g *Graph) TaskIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Size возвращает количество узлов в графе.
func (g *Graph) Size() int {
	return len(g.Nodes)
}
