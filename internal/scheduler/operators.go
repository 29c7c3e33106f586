package scheduler

import (
	"math/rand"
	"sort"

	"github.com/sysu-ecnc-dev/timetable-optimizer/backend/internal/domain"
)

// sortPopulation 按排名从好到坏排序
func sortPopulation(pop []*Chromosome) {
	sort.SliceStable(pop, func(i, j int) bool {
		return pop[i].fitness.Better(pop[j].fitness)
	})
}

// 以下选择算子都要求 pop 已经按排名排好序

// 锦标赛选择：随机抽取 size 个个体，排名最靠前的获胜
func selectByTournament(pop []*Chromosome, size int, rng *rand.Rand) *Chromosome {
	best := rng.Intn(len(pop))
	for k := 1; k < size; k++ {
		if i := rng.Intn(len(pop)); i < best {
			best = i
		}
	}
	return pop[best]
}

// 基于排名的轮盘赌：第 i 名的权重为 n - i
func selectByRoulette(pop []*Chromosome, rng *rand.Rand) *Chromosome {
	n := len(pop)
	total := float64(n*(n+1)) / 2
	pick := rng.Float64() * total
	partial := 0.0

	for i, ch := range pop {
		partial += float64(n - i)
		if partial >= pick {
			return ch
		}
	}

	// 理论上不会运行到这个地方
	return pop[n-1]
}

// 单点交叉：交换 point 之后的基因，point 在 [1, len-1] 中均匀选取
func onePointCrossover(a, b []Gene, rng *rand.Rand) {
	if len(a) != len(b) || len(a) < 2 {
		return
	}
	point := 1 + rng.Intn(len(a)-1)
	for i := point; i < len(a); i++ {
		a[i], b[i] = b[i], a[i]
	}
}

// 两点交叉：交换 [i, j) 之间的基因
func twoPointCrossover(a, b []Gene, rng *rand.Rand) {
	if len(a) != len(b) || len(a) < 2 {
		return
	}
	i := 1 + rng.Intn(len(a)-1)
	j := 1 + rng.Intn(len(a)-1)
	if i > j {
		i, j = j, i
	}
	for k := i; k < j; k++ {
		a[k], b[k] = b[k], a[k]
	}
}

func crossover(kind domain.CrossoverType, a, b []Gene, rng *rand.Rand) {
	if kind == domain.CrossoverTwoPoint {
		twoPointCrossover(a, b, rng)
		return
	}
	onePointCrossover(a, b, rng)
}

// 变异：每个基因以 rate 的概率重新选择教室、时间或两者
func mutate(p *problem, ch *Chromosome, rate float64, rng *rand.Rand) {
	for i := range ch.genes {
		if rng.Float64() >= rate {
			continue
		}

		switch rng.Intn(3) {
		case 0:
			ch.genes[i].Room = randomRoom(p, i, rng)
		case 1:
			ch.genes[i].Slot = rng.Intn(len(p.slots))
		default:
			ch.genes[i].Room = randomRoom(p, i, rng)
			ch.genes[i].Slot = rng.Intn(len(p.slots))
		}
	}
}
